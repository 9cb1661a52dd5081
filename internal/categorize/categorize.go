// Package categorize derives category tags for an event from its title and
// description using ordered keyword rules.
package categorize

import (
	"strings"

	"eventmap/internal/model"
)

// Tag names, in rule evaluation order.
const (
	TagDropIn        = "drop-in"
	TagSupport       = "support"
	TagBreakfastClub = "breakfast-club"
	TagMeeting       = "meeting"
	TagWorkshop      = "workshop"
	TagSocial        = "social"
	TagSport         = "sport"
)

// Text is the lowercased input a rule sees.
type Text struct {
	Title       string
	Description string
	// Combined is Title + " " + Description.
	Combined string
}

// Rule assigns Tag when Match reports true. Matching is plain substring
// containment, so "workshopping" matches "workshop".
type Rule struct {
	Tag   string
	Match func(Text) bool
}

// Result holds every matched tag in rule order and the primary tag.
type Result struct {
	Tags    []string
	Primary string
}

// Categorizer evaluates its rules independently; one event may carry several tags.
type Categorizer struct {
	rules []Rule
}

// New returns a Categorizer with DefaultRules.
func New() *Categorizer {
	return &Categorizer{rules: DefaultRules()}
}

// NewWithRules is used by tests and callers that need a custom rule order.
func NewWithRules(rules []Rule) *Categorizer {
	return &Categorizer{rules: rules}
}

// Categorize returns all matching tags. Primary is the first tag, or
// model.CategoryOther when nothing matched.
func (c *Categorizer) Categorize(title, description string) Result {
	t := Text{
		Title:       strings.ToLower(title),
		Description: strings.ToLower(description),
	}
	t.Combined = t.Title + " " + t.Description

	res := Result{Tags: []string{}, Primary: model.CategoryOther}
	for _, r := range c.rules {
		if r.Match(t) {
			res.Tags = append(res.Tags, r.Tag)
		}
	}
	if len(res.Tags) > 0 {
		res.Primary = res.Tags[0]
	}
	return res
}

// Tags lists the tags this categorizer can produce, in rule order, followed by "other".
func (c *Categorizer) Tags() []string {
	out := make([]string, 0, len(c.rules)+1)
	for _, r := range c.rules {
		out = append(out, r.Tag)
	}
	return append(out, model.CategoryOther)
}

// DefaultRules is the rule set tuned against the veterans community calendar.
//
// The breakfast-club rule has overlapping exclusions: "clay pigeon" suppresses
// the plain "breakfast" match, and a description mentioning "drop in"
// suppresses the "naafi break" match. Keep them as they are.
func DefaultRules() []Rule {
	return []Rule{
		{Tag: TagDropIn, Match: combinedHasAny("drop in", "drop-in")},
		{Tag: TagSupport, Match: combinedHasAny("support", "counselling", "therapy", "help", "advice", "welfare")},
		{Tag: TagBreakfastClub, Match: func(t Text) bool {
			if strings.Contains(t.Combined, "breakfast club") {
				return true
			}
			if strings.Contains(t.Combined, "breakfast") && !strings.Contains(t.Combined, "clay pigeon") {
				return true
			}
			return strings.Contains(t.Combined, "naafi break") && !strings.Contains(t.Description, "drop in")
		}},
		{Tag: TagMeeting, Match: combinedHasAny("meeting", "branch meeting", "association", "rbl", "royal british legion", "dli")},
		{Tag: TagWorkshop, Match: combinedHasAny("workshop", "training", "course", "seminar")},
		{Tag: TagSocial, Match: combinedHasAny("social", "mixer", "party", "celebration")},
		{Tag: TagSport, Match: func(t Text) bool {
			return combinedHasAny(
				"clay pigeon", "shooting", "football", "rugby", "sailing", "fishing",
				"golf", "cycling", "walking", "hiking", "swimming", "offshore sailing",
			)(t) || strings.Contains(t.Title, "sport")
		}},
	}
}

func combinedHasAny(words ...string) func(Text) bool {
	return func(t Text) bool {
		for _, w := range words {
			if strings.Contains(t.Combined, w) {
				return true
			}
		}
		return false
	}
}
