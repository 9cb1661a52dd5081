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
	"eventmap/internal/postcode"
)

// PostcodesIO resolves UK postcodes through https://postcodes.io. Full
// postcodes use /postcodes/{pc}; outward codes use /outcodes/{oc}, whose
// result is the area centroid. Anything else is ErrNoResult, so the provider
// is safe to put first in a chain.
type PostcodesIO struct {
	baseURL string
	client  *http.Client
}

type postcodesResp struct {
	Status int `json:"status"`
	Result *struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	} `json:"result"`
}

func NewPostcodesIO(baseURL string, timeout time.Duration) *PostcodesIO {
	if baseURL == "" {
		baseURL = "https://api.postcodes.io"
	}
	return &PostcodesIO{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  NewHTTPClient(timeout),
	}
}

func (p *PostcodesIO) Name() string { return "postcodesio" }

func (p *PostcodesIO) Geocode(ctx context.Context, q Query) (model.Coordinate, error) {
	if q.Country != "" && !strings.EqualFold(q.Country, "gb") {
		return model.Coordinate{}, fmt.Errorf("postcodesio: %w: country %s", ErrNoResult, q.Country)
	}

	var path string
	switch pc := postcode.Normalize(q.Address); {
	case postcode.IsFull(pc):
		path = "/postcodes/" + url.PathEscape(pc)
	case postcode.IsPartial(pc):
		path = "/outcodes/" + url.PathEscape(pc)
	default:
		return model.Coordinate{}, fmt.Errorf("postcodesio: %w: not a postcode", ErrNoResult)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return model.Coordinate{}, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return model.Coordinate{}, fmt.Errorf("postcodesio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return model.Coordinate{}, statusError("postcodesio", resp.StatusCode)
	}

	var data postcodesResp
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return model.Coordinate{}, fmt.Errorf("postcodesio: decode: %w", err)
	}
	// Terminated and non-geographic postcodes come back with null coordinates.
	if data.Result == nil || data.Result.Latitude == nil || data.Result.Longitude == nil {
		return model.Coordinate{}, fmt.Errorf("postcodesio: %w", ErrNoResult)
	}
	c := model.Coordinate{Lat: *data.Result.Latitude, Lng: *data.Result.Longitude}
	if !validCoordinate(c) {
		return model.Coordinate{}, fmt.Errorf("postcodesio: %w: invalid coordinate", ErrNoResult)
	}
	return c, nil
}
