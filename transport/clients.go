/*
clients.go - HTTP implementations of the Geocoder and Router collaborators

Default production wiring talks to a Nominatim-compatible geocoding service
and an OSRM-compatible routing service. Both are plain JSON-over-HTTP and
honor the per-call context deadline set by the calculator; neither retries
(the engine keeps bulk latency bounded, callers retry if they want to).
*/
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"
)

// =============================================================================
// NOMINATIM GEOCODER
// =============================================================================

// NominatimGeocoder resolves addresses against a Nominatim /search endpoint.
type NominatimGeocoder struct {
	BaseURL string // e.g. https://nominatim.openstreetmap.org
	Client  *http.Client
}

func NewNominatimGeocoder(baseURL string) *NominatimGeocoder {
	return &NominatimGeocoder{BaseURL: baseURL, Client: http.DefaultClient}
}

func (g *NominatimGeocoder) Geocode(ctx context.Context, address string) (Coordinates, error) {
	u := fmt.Sprintf("%s/search?format=json&limit=1&q=%s", g.BaseURL, url.QueryEscape(address))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Coordinates{}, err
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return Coordinates{}, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Coordinates{}, fmt.Errorf("geocode: unexpected status %d", resp.StatusCode)
	}

	var hits []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return Coordinates{}, fmt.Errorf("geocode decode: %w", err)
	}
	if len(hits) == 0 {
		return Coordinates{}, fmt.Errorf("geocode: no match for address")
	}

	lat, err := strconv.ParseFloat(hits[0].Lat, 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("geocode: bad latitude %q", hits[0].Lat)
	}
	lng, err := strconv.ParseFloat(hits[0].Lon, 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("geocode: bad longitude %q", hits[0].Lon)
	}
	return Coordinates{Lat: lat, Lng: lng}, nil
}

// =============================================================================
// OSRM ROUTER
// =============================================================================

// OSRMRouter resolves driving routes against an OSRM /route endpoint.
// OSRM reports no toll usage, so routes come back with HasTollRoad false;
// a toll-aware provider can replace this implementation behind the Router
// interface without touching the calculator.
type OSRMRouter struct {
	BaseURL string // e.g. https://router.project-osrm.org
	Client  *http.Client
}

func NewOSRMRouter(baseURL string) *OSRMRouter {
	return &OSRMRouter{BaseURL: baseURL, Client: http.DefaultClient}
}

func (r *OSRMRouter) Route(ctx context.Context, origin, dest Coordinates) (Route, error) {
	// OSRM wants lng,lat pairs.
	u := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=false",
		r.BaseURL, origin.Lng, origin.Lat, dest.Lng, dest.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Route{}, err
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return Route{}, fmt.Errorf("route request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Route{}, fmt.Errorf("route: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Code   string `json:"code"`
		Routes []struct {
			Distance float64 `json:"distance"` // meters
		} `json:"routes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Route{}, fmt.Errorf("route decode: %w", err)
	}
	if body.Code != "Ok" || len(body.Routes) == 0 {
		return Route{}, fmt.Errorf("route: no route (code %s)", body.Code)
	}

	km := decimal.NewFromFloat(body.Routes[0].Distance).Div(decimal.NewFromInt(1000)).Round(2)
	return Route{DistanceKm: km}, nil
}
