package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"eventmap/internal/config"
	appLog "eventmap/internal/log"
	"eventmap/internal/model"
)

// Google Calendar API v3, public calendars read with an API key.
// Endpoint used: /calendars/{id}/events?singleEvents=true&orderBy=startTime
const (
	defaultGoogleBaseURL = "https://www.googleapis.com/calendar/v3"
	googleMaxPageSize    = 2500
)

type GoogleSource struct {
	baseURL    string
	calendarID string
	apiKey     string
	loc        *time.Location
	now        func() time.Time
	client     *http.Client
}

type googleError struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func NewGoogleSource(gc config.GoogleCalendarConfig, timeout time.Duration, loc *time.Location, now func() time.Time) *GoogleSource {
	base := gc.BaseURL
	if base == "" {
		base = defaultGoogleBaseURL
	}
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &GoogleSource{
		baseURL:    strings.TrimRight(base, "/"),
		calendarID: strings.TrimSpace(gc.CalendarID),
		apiKey:     strings.TrimSpace(gc.APIKey),
		loc:        loc,
		now:        now,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *GoogleSource) Name() string { return "google" }

// Load pages through events from the start of today until max items.
func (s *GoogleSource) Load(ctx context.Context, max int) ([]model.CalendarItem, error) {
	if config.IsPlaceholder(s.apiKey) {
		return nil, fmt.Errorf("google: %w: api_key is missing or a placeholder", ErrNotConfigured)
	}
	if s.calendarID == "" {
		return nil, fmt.Errorf("google: %w: calendar_id is empty", ErrNotConfigured)
	}

	timeMin := startOfDay(s.now(), s.loc).Format(time.RFC3339)
	items := make([]model.CalendarItem, 0)
	pageToken := ""

	for {
		pageSize := googleMaxPageSize
		if max > 0 {
			pageSize = min(max-len(items), googleMaxPageSize)
		}

		q := url.Values{}
		q.Set("key", s.apiKey)
		q.Set("timeMin", timeMin)
		q.Set("singleEvents", "true")
		q.Set("orderBy", "startTime")
		q.Set("maxResults", strconv.Itoa(pageSize))
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		u := fmt.Sprintf("%s/calendars/%s/events?%s", s.baseURL, url.PathEscape(s.calendarID), q.Encode())

		page, err := s.fetchPage(ctx, u)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
		pageToken = page.NextPageToken

		if pageToken == "" || (max > 0 && len(items) >= max) {
			break
		}
	}

	if max > 0 && len(items) > max {
		items = items[:max]
	}
	return items, nil
}

func (s *GoogleSource) fetchPage(ctx context.Context, u string) (eventsList, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return eventsList{}, err
	}
	req.Header.Set("Accept", "application/json")

	appLog.Debug("google calendar fetch", "url", redactURL(u))
	resp, err := s.client.Do(req)
	if err != nil {
		return eventsList{}, fmt.Errorf("google: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var ge googleError
		_ = json.NewDecoder(resp.Body).Decode(&ge)
		if ge.Error != nil && ge.Error.Message != "" {
			return eventsList{}, fmt.Errorf("google: http %d: %s", resp.StatusCode, ge.Error.Message)
		}
		return eventsList{}, fmt.Errorf("google: http %d", resp.StatusCode)
	}

	var page eventsList
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return eventsList{}, fmt.Errorf("google: decode: %w", err)
	}
	return page, nil
}
