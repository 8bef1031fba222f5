package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/paulmach/orb"

	"branch-scraper/models"
	"branch-scraper/utils"
)

// DefaultEndpoint is the Google Maps Geocoding API.
const DefaultEndpoint = "https://maps.googleapis.com/maps/api/geocode/json"

// DefaultDelay spaces consecutive calls to respect the API rate limit.
const DefaultDelay = 200 * time.Millisecond

// metroManilaBound is a loose box around Metro Manila; a geocode
// landing outside it is almost certainly a mismatch worth logging.
var metroManilaBound = orb.Bound{
	Min: orb.Point{120.85, 14.30},
	Max: orb.Point{121.20, 14.85},
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocoder attaches coordinates to branch records, one lookup at a
// time. Failures are local to a record; the batch always completes.
type Geocoder struct {
	client   *http.Client
	endpoint string
	apiKey   string
	throttle *utils.Throttle
	logger   *utils.Logger
}

// New creates a Geocoder against the given endpoint.
func New(endpoint, apiKey string, throttle *utils.Throttle, logger *utils.Logger) *Geocoder {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Geocoder{
		client:   &http.Client{Timeout: 10 * time.Second},
		endpoint: endpoint,
		apiKey:   apiKey,
		throttle: throttle,
		logger:   logger,
	}
}

// Enrich looks up coordinates for each record strictly in input order,
// never concurrently, pausing between calls. The returned slice has the
// same length and order as the input; records whose lookup failed keep
// absent coordinates. A failed lookup is never retried within the run.
func (g *Geocoder) Enrich(ctx context.Context, records []*models.BranchRecord) []*models.BranchRecord {
	for i, rec := range records {
		query := fmt.Sprintf("%s, %s, Philippines", rec.Address, rec.City)

		lat, lng, err := g.lookup(ctx, query)
		if err != nil {
			g.logger.Warn("[geocode] no coordinates for %q: %v", rec.BranchName, err)
		} else {
			rec.SetLocation(lat, lng)
			g.logger.Debug("[geocode] %s → %s, %s", rec.BranchName, rec.Latitude, rec.Longitude)
			if !metroManilaBound.Contains(orb.Point{lng, lat}) {
				g.logger.Warn("[geocode] %q resolved outside Metro Manila (%f, %f)",
					rec.BranchName, lat, lng)
			}
		}

		if i < len(records)-1 {
			g.throttle.Wait()
		}
	}
	return records
}

// lookup performs one geocoding call. Success requires an "OK" status
// and at least one result; the first result's location wins.
func (g *Geocoder) lookup(ctx context.Context, query string) (float64, float64, error) {
	u := g.endpoint + "?" + url.Values{
		"address": {query},
		"key":     {g.apiKey},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("creating request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("geocoding returned status %d", resp.StatusCode)
	}

	var body geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, 0, fmt.Errorf("decoding geocoding response: %w", err)
	}

	if body.Status != "OK" || len(body.Results) == 0 {
		return 0, 0, fmt.Errorf("no match (status %s)", body.Status)
	}

	loc := body.Results[0].Geometry.Location
	return loc.Lat, loc.Lng, nil
}
