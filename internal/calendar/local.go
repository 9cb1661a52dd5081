package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"eventmap/internal/model"
)

// LocalSource reads a static export shaped like a Calendar API events.list
// response ({"items": [...]}) or a bare array of items.
type LocalSource struct {
	path string
}

func NewLocalSource(path string) *LocalSource {
	return &LocalSource{path: path}
}

func (s *LocalSource) Name() string { return "local" }

func (s *LocalSource) Load(_ context.Context, max int) ([]model.CalendarItem, error) {
	if s.path == "" {
		return nil, fmt.Errorf("local: %w: no path", ErrNotConfigured)
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("local: %w: %s does not exist", ErrNotConfigured, s.path)
	}
	if err != nil {
		return nil, err
	}

	items, err := decodeItems(data)
	if err != nil {
		return nil, fmt.Errorf("local: %s: %w", s.path, err)
	}
	if max > 0 && len(items) > max {
		items = items[:max]
	}
	return items, nil
}

type eventsList struct {
	Items         []model.CalendarItem `json:"items"`
	NextPageToken string               `json:"nextPageToken,omitempty"`
}

func decodeItems(data []byte) ([]model.CalendarItem, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []model.CalendarItem{}, nil
	}
	if trimmed[0] == '[' {
		var items []model.CalendarItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	var list eventsList
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return nil, err
	}
	if list.Items == nil {
		list.Items = []model.CalendarItem{}
	}
	return list.Items, nil
}
