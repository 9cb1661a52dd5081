package marker

import (
	"testing"

	"eventmap/internal/model"
)

func TestBuild(t *testing.T) {
	events := []model.Event{
		{ID: 1, Title: "Breakfast Club", Date: "2026-03-10", Time: "All day", Location: "Durham", Lat: 54.7761, Lng: -1.5733},
		{ID: 2, Title: "Quiz", Date: "2026-03-11", Time: "19:00", Lat: 55.4130, Lng: -1.7060},
		{ID: 3, Title: "Drop-in", Date: "2026-03-12", Time: "10:00 - 12:00", Location: "Durham", Lat: 54.7761, Lng: -1.5733},
		{ID: 4, Title: "Nowhere", Date: "2026-03-12", Time: "Time TBD"},
	}

	got := Build(events, nil, 0)
	if len(got) != 2 {
		t.Fatalf("markers = %+v", got)
	}
	if ids := got[0].EventIDs; len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Errorf("shared marker ids = %v", ids)
	}
	if got[0].Popups[0] != "Breakfast Club\n2026-03-10 All day\nDurham" {
		t.Errorf("popup = %q", got[0].Popups[0])
	}
	if got[1].Popups[0] != "Quiz\n2026-03-11 19:00" {
		t.Errorf("popup without location = %q", got[1].Popups[0])
	}
}

func TestBuild_Cap(t *testing.T) {
	events := []model.Event{
		{ID: 1, Lat: 54.1, Lng: -1.1},
		{ID: 2, Lat: 54.2, Lng: -1.2},
		{ID: 3, Lat: 54.1, Lng: -1.1},
		{ID: 4, Lat: 54.3, Lng: -1.3},
	}
	got := Build(events, nil, 2)
	if len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
	// Events joining an existing marker are still placed after the cap is hit.
	if ids := got[0].EventIDs; len(ids) != 2 || ids[1] != 3 {
		t.Errorf("ids = %v", ids)
	}
}

func TestBuild_Annotated(t *testing.T) {
	events := []model.Event{{ID: 7, Title: "Golf", Date: "2026-03-12", Time: "09:00", Lat: 54.5, Lng: -1.2}}
	ann := map[int]model.SearchAnnotation{7: {DistanceKm: 12.345, RadiusKm: 25}}
	got := Build(events, ann, 10)
	if got[0].Popups[0] != "Golf\n2026-03-12 09:00\n12.3 km away" {
		t.Errorf("popup = %q", got[0].Popups[0])
	}
}
