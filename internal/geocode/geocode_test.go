package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"eventmap/internal/config"
	"eventmap/internal/model"
)

func TestGoogle_Statuses(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    model.Coordinate
		wantErr error
	}{
		{"ok", `{"status":"OK","results":[{"geometry":{"location":{"lat":54.97,"lng":-1.61}}}]}`, model.Coordinate{Lat: 54.97, Lng: -1.61}, nil},
		{"zero results", `{"status":"ZERO_RESULTS","results":[]}`, model.Coordinate{}, ErrNoResult},
		{"quota", `{"status":"OVER_QUERY_LIMIT"}`, model.Coordinate{}, ErrRateLimited},
		{"denied", `{"status":"REQUEST_DENIED","error_message":"bad key"}`, model.Coordinate{}, ErrDenied},
		{"zero coordinate", `{"status":"OK","results":[{"geometry":{"location":{"lat":0,"lng":0}}}]}`, model.Coordinate{}, ErrNoResult},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/geocode/json" {
					t.Errorf("path = %s", r.URL.Path)
				}
				if got := r.URL.Query().Get("components"); got != "country:GB" {
					t.Errorf("components = %q", got)
				}
				if got := r.URL.Query().Get("key"); got != "k" {
					t.Errorf("key = %q", got)
				}
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			g := NewGoogle(srv.URL, "k", time.Second)
			got, err := g.Geocode(context.Background(), Query{Address: "Durham", Country: "gb"})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Geocode: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestGoogle_NoKey(t *testing.T) {
	_, err := NewGoogle("http://unused.invalid", "", time.Second).Geocode(context.Background(), Query{Address: "x"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestNominatim_SendsUserAgentAndCountry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "eventmap-test" {
			t.Errorf("User-Agent = %q", ua)
		}
		if cc := r.URL.Query().Get("countrycodes"); cc != "gb" {
			t.Errorf("countrycodes = %q", cc)
		}
		if r.URL.Query().Get("q") == "nowhere" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(`[{"lat":"54.7761","lon":"-1.5733"}]`))
	}))
	defer srv.Close()

	n := NewNominatim(srv.URL, "eventmap-test", 1000, 10, time.Second)
	got, err := n.Geocode(context.Background(), Query{Address: "Durham", Country: "GB"})
	if err != nil {
		t.Fatalf("Geocode: %v", err)
	}
	if got.Lat != 54.7761 || got.Lng != -1.5733 {
		t.Errorf("got %+v", got)
	}

	if _, err := n.Geocode(context.Background(), Query{Address: "nowhere", Country: "gb"}); !errors.Is(err, ErrNoResult) {
		t.Errorf("err = %v, want ErrNoResult", err)
	}
}

func TestPostcodesIO_Routes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/postcodes/SW1A 1AA":
			_, _ = w.Write([]byte(`{"status":200,"result":{"latitude":51.501,"longitude":-0.1416}}`))
		case "/outcodes/TS28":
			_, _ = w.Write([]byte(`{"status":200,"result":{"latitude":54.71,"longitude":-1.36}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":404,"error":"Postcode not found"}`))
		}
	}))
	defer srv.Close()

	p := NewPostcodesIO(srv.URL, time.Second)
	ctx := context.Background()

	full, err := p.Geocode(ctx, Query{Address: "sw1a  1aa", Country: "gb"})
	if err != nil || full.Lat != 51.501 {
		t.Errorf("full postcode = %+v, %v", full, err)
	}
	partial, err := p.Geocode(ctx, Query{Address: "ts28"})
	if err != nil || partial.Lat != 54.71 {
		t.Errorf("outcode = %+v, %v", partial, err)
	}
	if _, err := p.Geocode(ctx, Query{Address: "ZZ9 9ZZ"}); !errors.Is(err, ErrNoResult) {
		t.Errorf("unknown postcode err = %v", err)
	}
	if _, err := p.Geocode(ctx, Query{Address: "Hexham"}); !errors.Is(err, ErrNoResult) {
		t.Errorf("place name err = %v", err)
	}
}

type stubProvider struct {
	name  string
	calls int32
	errs  []error
	coord model.Coordinate
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Geocode(context.Context, Query) (model.Coordinate, error) {
	n := int(atomic.AddInt32(&s.calls, 1)) - 1
	if n < len(s.errs) && s.errs[n] != nil {
		return model.Coordinate{}, s.errs[n]
	}
	return s.coord, nil
}

func TestChain_FirstSuccessWins(t *testing.T) {
	a := &stubProvider{name: "a", errs: []error{ErrNoResult}}
	b := &stubProvider{name: "b", coord: model.Coordinate{Lat: 1, Lng: 2}}
	c := &stubProvider{name: "c", coord: model.Coordinate{Lat: 3, Lng: 4}}

	got, err := NewChain(a, b, c).Geocode(context.Background(), Query{Address: "x"})
	if err != nil {
		t.Fatalf("Geocode: %v", err)
	}
	if got != b.coord {
		t.Errorf("got %+v, want %+v", got, b.coord)
	}
	if c.calls != 0 {
		t.Errorf("provider after success was called %d times", c.calls)
	}
}

func TestChain_AllFail(t *testing.T) {
	a := &stubProvider{name: "a", errs: []error{ErrDenied}}
	b := &stubProvider{name: "b", errs: []error{ErrNoResult}}

	_, err := NewChain(a, b).Geocode(context.Background(), Query{Address: "x"})
	if !errors.Is(err, ErrNoResult) || !errors.Is(err, ErrDenied) {
		t.Fatalf("err = %v, want both joined", err)
	}

	if _, err := NewChain().Geocode(context.Background(), Query{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("empty chain err = %v", err)
	}
}

func TestWithRetry_OnlyTransient(t *testing.T) {
	flaky := &stubProvider{name: "flaky", errs: []error{errors.New("connection reset"), ErrRateLimited}, coord: model.Coordinate{Lat: 5, Lng: 6}}
	got, err := WithRetry(flaky, 2, time.Millisecond, 2*time.Millisecond).Geocode(context.Background(), Query{})
	if err != nil || got.Lat != 5 {
		t.Fatalf("got %+v, %v", got, err)
	}
	if flaky.calls != 3 {
		t.Errorf("calls = %d, want 3", flaky.calls)
	}

	none := &stubProvider{name: "none", errs: []error{ErrNoResult, ErrNoResult}}
	if _, err := WithRetry(none, 3, time.Millisecond, time.Millisecond).Geocode(context.Background(), Query{}); !errors.Is(err, ErrNoResult) {
		t.Fatalf("err = %v", err)
	}
	if none.calls != 1 {
		t.Errorf("ErrNoResult was retried: calls = %d", none.calls)
	}
}

func TestRetry_ServerErrorThenSuccess(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[{"lat":"55.0","lon":"-1.5"}]`))
	}))
	defer srv.Close()

	p := WithRetry(NewNominatim(srv.URL, "t", 1000, 10, time.Second), 1, time.Millisecond, time.Millisecond)
	if _, err := p.Geocode(context.Background(), Query{Address: "Blyth"}); err != nil {
		t.Fatalf("Geocode: %v", err)
	}
	if hits != 2 {
		t.Errorf("hits = %d, want 2", hits)
	}
}

func TestNewChainFromConfig_SkipsPlaceholderKey(t *testing.T) {
	gc := config.DefaultConfig().Geocoding
	c := NewChainFromConfig(gc)
	// google is configured with YOUR_API_KEY and must be skipped.
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2 (%s)", c.Len(), c.Describe())
	}
	if got := c.Describe(); got != "[postcodesio nominatim]" {
		t.Errorf("Describe = %s", got)
	}

	if _, err := NewProviderFromConfig(config.ProviderConfig{Type: "bing"}, gc); err == nil {
		t.Error("unknown provider type should fail")
	}
}

func TestStatus(t *testing.T) {
	tests := map[string]error{
		"ok":             nil,
		"no_result":      ErrNoResult,
		"rate_limited":   ErrRateLimited,
		"denied":         ErrDenied,
		"not_configured": ErrNotConfigured,
		"timeout":        context.DeadlineExceeded,
		"error":          errors.New("dial tcp"),
	}
	for want, err := range tests {
		if got := Status(err); got != want {
			t.Errorf("Status(%v) = %s, want %s", err, got, want)
		}
	}
}
