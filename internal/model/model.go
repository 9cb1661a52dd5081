package model

// Coordinate is a WGS-84 latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// IsZero reports whether c is exactly (0,0), the "unresolvable" sentinel.
func (c Coordinate) IsZero() bool {
	return c.Lat == 0 && c.Lng == 0
}

// Event is the canonical, display-ready event produced by the normalizer.
// Events are immutable once built; per-search data lives in SearchAnnotation.
type Event struct {
	// ID is unique within one loaded event set only (1-based, processing order).
	ID int `json:"id"`

	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`

	// Category is the primary tag; Categories holds every matched tag in rule order.
	Category   string   `json:"category"`
	Categories []string `json:"categories"`

	// Date is the local calendar date of the start (YYYY-MM-DD).
	Date string `json:"date"`
	// Time is the display string: "All day", "HH:MM - HH:MM", "HH:MM" or "Time TBD".
	Time string `json:"time"`
	// StartTime / EndTime are 24-hour HH:MM strings, nil for all-day events.
	StartTime *string `json:"startTime"`
	EndTime   *string `json:"endTime"`
	AllDay    bool    `json:"allDay"`

	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`

	IsElapsed bool `json:"isElapsed"`
}

// Coordinate returns the event's resolved position.
func (e Event) Coordinate() Coordinate {
	return Coordinate{Lat: e.Lat, Lng: e.Lng}
}

// DisplayCategories returns Categories, or ["other"] when no rule matched.
func (e Event) DisplayCategories() []string {
	if len(e.Categories) == 0 {
		return []string{CategoryOther}
	}
	return e.Categories
}

// CategoryOther is the primary category of events that matched no rule.
const CategoryOther = "other"

// SearchKind classifies a search query.
type SearchKind string

const (
	SearchPostcode        SearchKind = "postcode"
	SearchPartialPostcode SearchKind = "partialPostcode"
	SearchPlace           SearchKind = "place"
	SearchFreeText        SearchKind = "freetext"
)

// SearchOrigin is the resolved centre and radius of a location-based search.
// It only lives for one filter pass.
type SearchOrigin struct {
	Lat      float64    `json:"lat"`
	Lng      float64    `json:"lng"`
	RadiusKm float64    `json:"radiusKm"`
	Kind     SearchKind `json:"kind"`
}

// Coordinate returns the origin's centre.
func (o SearchOrigin) Coordinate() Coordinate {
	return Coordinate{Lat: o.Lat, Lng: o.Lng}
}

// SearchAnnotation is computed per event during a location-based filter pass,
// keyed by Event.ID. It is recomputed on every pass.
type SearchAnnotation struct {
	DistanceKm        float64 `json:"searchDistance"`
	RadiusKm          float64 `json:"searchRadius"`
	IsPartialPostcode bool    `json:"isPartialPostcode"`
	IsPlaceSearch     bool    `json:"isPlaceSearch"`
}

// CalendarTime mirrors the start/end object of a Google Calendar event:
// all-day events carry Date, timed events carry DateTime (RFC3339).
type CalendarTime struct {
	Date     string `json:"date,omitempty"`
	DateTime string `json:"dateTime,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// IsAllDay reports whether the time is date-only.
func (t CalendarTime) IsAllDay() bool {
	return t.DateTime == "" && t.Date != ""
}

// IsEmpty reports whether neither field is set.
func (t CalendarTime) IsEmpty() bool {
	return t.Date == "" && t.DateTime == ""
}

// CalendarItem is one raw record of the calendar feed, whatever the source.
type CalendarItem struct {
	ID               string       `json:"id,omitempty"`
	Summary          string       `json:"summary"`
	Description      string       `json:"description,omitempty"`
	Location         string       `json:"location,omitempty"`
	Start            CalendarTime `json:"start"`
	End              CalendarTime `json:"end"`
	RecurringEventID string       `json:"recurringEventId,omitempty"`
}

// Marker is a request to place one pin on the map. Events sharing the exact
// same coordinate are merged into one marker.
type Marker struct {
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	EventIDs []int    `json:"eventIds"`
	Popups   []string `json:"popups"`
}
