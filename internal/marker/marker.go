// Package marker turns filtered events into map placement requests.
package marker

import (
	"fmt"
	"strings"

	"eventmap/internal/model"
)

// Build groups events that share exactly the same coordinate into one
// marker, keeping event order, and stops after max markers (0 means no
// limit). Events at (0,0) are never placed. annotations may be nil.
func Build(events []model.Event, annotations map[int]model.SearchAnnotation, max int) []model.Marker {
	markers := make([]model.Marker, 0)
	index := make(map[model.Coordinate]int)

	for _, ev := range events {
		c := ev.Coordinate()
		if c.IsZero() {
			continue
		}
		i, ok := index[c]
		if !ok {
			if max > 0 && len(markers) >= max {
				continue
			}
			i = len(markers)
			index[c] = i
			markers = append(markers, model.Marker{Lat: c.Lat, Lng: c.Lng})
		}
		ann, annotated := annotations[ev.ID]
		markers[i].EventIDs = append(markers[i].EventIDs, ev.ID)
		markers[i].Popups = append(markers[i].Popups, Popup(ev, ann, annotated))
	}
	return markers
}

// Popup is the plain-text popup body for one event.
func Popup(ev model.Event, ann model.SearchAnnotation, annotated bool) string {
	lines := []string{ev.Title, ev.Date + " " + ev.Time}
	if ev.Location != "" {
		lines = append(lines, ev.Location)
	}
	if annotated {
		lines = append(lines, fmt.Sprintf("%.1f km away", ann.DistanceKm))
	}
	return strings.Join(lines, "\n")
}
