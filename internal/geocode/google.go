package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"eventmap/internal/model"
)

// Google geocoding docs: https://developers.google.com/maps/documentation/geocoding
// Endpoint used: /geocode/json?address=<addr>&components=country:<CC>&key=<KEY>

type Google struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

type googleResp struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

func NewGoogle(baseURL, apiKey string, timeout time.Duration) *Google {
	if baseURL == "" {
		baseURL = "https://maps.googleapis.com/maps/api"
	}
	return &Google{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client:  NewHTTPClient(timeout),
	}
}

func (g *Google) Name() string { return "google" }

func (g *Google) Geocode(ctx context.Context, q Query) (model.Coordinate, error) {
	if g.apiKey == "" {
		return model.Coordinate{}, fmt.Errorf("google: %w", ErrNotConfigured)
	}
	v := url.Values{}
	v.Set("address", q.Address)
	v.Set("key", g.apiKey)
	if q.Country != "" {
		v.Set("components", "country:"+strings.ToUpper(q.Country))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/geocode/json?"+v.Encode(), nil)
	if err != nil {
		return model.Coordinate{}, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return model.Coordinate{}, fmt.Errorf("google: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return model.Coordinate{}, statusError("google", resp.StatusCode)
	}

	var data googleResp
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return model.Coordinate{}, fmt.Errorf("google: decode: %w", err)
	}

	switch data.Status {
	case "OK":
	case "ZERO_RESULTS":
		return model.Coordinate{}, fmt.Errorf("google: %w", ErrNoResult)
	case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT":
		return model.Coordinate{}, fmt.Errorf("google: %w: %s", ErrRateLimited, data.Status)
	case "REQUEST_DENIED", "INVALID_REQUEST":
		return model.Coordinate{}, fmt.Errorf("google: %w: %s %s", ErrDenied, data.Status, data.ErrorMessage)
	default:
		return model.Coordinate{}, fmt.Errorf("google: status %s", data.Status)
	}
	if len(data.Results) == 0 {
		return model.Coordinate{}, fmt.Errorf("google: %w", ErrNoResult)
	}

	loc := data.Results[0].Geometry.Location
	c := model.Coordinate{Lat: loc.Lat, Lng: loc.Lng}
	if !validCoordinate(c) {
		return model.Coordinate{}, fmt.Errorf("google: %w: invalid coordinate", ErrNoResult)
	}
	return c, nil
}
