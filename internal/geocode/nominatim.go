package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"eventmap/internal/model"
)

// Nominatim is the OpenStreetMap search API. The public instance requires a
// descriptive User-Agent and allows at most one request per second.
// Endpoint used: /search?q=<addr>&format=json&limit=1&countrycodes=<cc>
type Nominatim struct {
	baseURL   string
	userAgent string
	limiter   *rate.Limiter
	client    *http.Client
}

// lat/lon come back as strings.
type nominatimPlace struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

func NewNominatim(baseURL, userAgent string, perSecond float64, burst int, timeout time.Duration) *Nominatim {
	if baseURL == "" {
		baseURL = "https://nominatim.openstreetmap.org"
	}
	if userAgent == "" {
		userAgent = "eventmap/1.0"
	}
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &Nominatim{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		limiter:   rate.NewLimiter(rate.Limit(perSecond), burst),
		client:    NewHTTPClient(timeout),
	}
}

func (n *Nominatim) Name() string { return "nominatim" }

func (n *Nominatim) Geocode(ctx context.Context, q Query) (model.Coordinate, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return model.Coordinate{}, err
	}

	v := url.Values{}
	v.Set("q", q.Address)
	v.Set("format", "json")
	v.Set("limit", "1")
	if q.Country != "" {
		v.Set("countrycodes", strings.ToLower(q.Country))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/search?"+v.Encode(), nil)
	if err != nil {
		return model.Coordinate{}, err
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return model.Coordinate{}, fmt.Errorf("nominatim: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return model.Coordinate{}, statusError("nominatim", resp.StatusCode)
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return model.Coordinate{}, fmt.Errorf("nominatim: decode: %w", err)
	}
	if len(places) == 0 {
		return model.Coordinate{}, fmt.Errorf("nominatim: %w", ErrNoResult)
	}

	lat, err1 := strconv.ParseFloat(places[0].Lat, 64)
	lng, err2 := strconv.ParseFloat(places[0].Lon, 64)
	c := model.Coordinate{Lat: lat, Lng: lng}
	if err1 != nil || err2 != nil || !validCoordinate(c) {
		return model.Coordinate{}, fmt.Errorf("nominatim: %w: bad coordinate %q,%q", ErrNoResult, places[0].Lat, places[0].Lon)
	}
	return c, nil
}
