package tdx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"transitguide/internal/envelope"
	"transitguide/internal/maps"
)

// RoutingURL is the TDX MaaS multimodal routing endpoint.
const RoutingURL = "https://tdx.transportdata.tw/api/maas/routing"

// RouteNotFoundMessage is the failure text when the router returns no itineraries.
const RouteNotFoundMessage = "Route not found"

const (
	timeLayout = "2006-01-02T15:04:05"

	departOffset  = 5 * time.Minute
	arrivalWindow = 24 * time.Hour
)

// TransitModes is the fixed allow-list of public transport modes.
var TransitModes = []int{3, 4, 5, 6, 7, 8, 9}

// taipei is the zone the router interprets depart/arrival in. Taiwan has no DST.
var taipei = time.FixedZone("Asia/Taipei", 8*60*60)

// RouteResult is the provider's itinerary payload, passed through untouched.
type RouteResult = json.RawMessage

// TokenSource hands out bearer tokens for the routing API.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// RouteQuery is a GeoIntent plus the dispatch-time window.
type RouteQuery struct {
	maps.GeoIntent
	Depart  time.Time
	Arrival time.Time
	Transit []int
}

// RouteService queries the TDX routing API.
type RouteService struct {
	tokens     TokenSource
	endpoint   string
	httpClient *http.Client
	now        func() time.Time
	log        *zap.Logger
}

// NewRouteService creates a RouteService that authenticates through tokens.
func NewRouteService(tokens TokenSource, log *zap.Logger) *RouteService {
	return &RouteService{
		tokens:     tokens,
		endpoint:   RoutingURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
		log:        log,
	}
}

// SetEndpoint points the service at a different routing URL.
func (s *RouteService) SetEndpoint(u string) {
	s.endpoint = u
}

// SetClock overrides time.Now when building the time window.
func (s *RouteService) SetClock(now func() time.Time) {
	s.now = now
}

// NewRouteQuery derives the depart/arrival window from now.
func NewRouteQuery(geo maps.GeoIntent, now time.Time) RouteQuery {
	return RouteQuery{
		GeoIntent: geo,
		Depart:    now.Add(departOffset),
		Arrival:   now.Add(arrivalWindow),
		Transit:   TransitModes,
	}
}

// Values renders q as routing query parameters. Coordinates go out as "lat,lng".
func (q RouteQuery) Values() url.Values {
	transit := make([]string, len(q.Transit))
	for i, m := range q.Transit {
		transit[i] = strconv.Itoa(m)
	}

	v := url.Values{}
	v.Set("origin", latLng(q.Origin))
	v.Set("destination", latLng(q.Destination))
	v.Set("gc", strconv.Itoa(q.PreferenceCode))
	v.Set("top", "1")
	v.Set("transit", strings.Join(transit, ","))
	v.Set("transfer_time", "0,30")
	v.Set("depart", q.Depart.In(taipei).Format(timeLayout))
	v.Set("arrival", q.Arrival.In(taipei).Format(timeLayout))
	v.Set("first_mile_mode", "0")
	v.Set("first_mile_time", "30")
	v.Set("last_mile_mode", "0")
	v.Set("last_mile_time", "30")
	return v
}

func latLng(c maps.Coordinate) string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lng, 'f', -1, 64)
}

type routingResponse struct {
	Result string          `json:"result"`
	Error  json.RawMessage `json:"error"`
	Data   json.RawMessage `json:"data"`
}

// Route fetches the single best itinerary for geo.
func (s *RouteService) Route(ctx context.Context, geo maps.GeoIntent) envelope.Envelope[RouteResult] {
	q := NewRouteQuery(geo, s.now())

	resp, err := s.fetch(ctx, q)
	if err != nil {
		s.log.Warn("routing request failed", zap.Error(err))
		return envelope.Fail[RouteResult](err.Error(), envelope.KindRoutingBackend)
	}

	if resp.Result == "fail" {
		msg := providerError(resp.Error)
		s.log.Warn("routing provider reported failure", zap.String("error", msg))
		return envelope.Fail[RouteResult](msg, envelope.KindRoutingBackend)
	}

	var data struct {
		Routes []json.RawMessage `json:"routes"`
	}
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			return envelope.Fail[RouteResult](fmt.Sprintf("routing: decode data: %v", err), envelope.KindRoutingBackend)
		}
	}
	if len(data.Routes) == 0 {
		return envelope.Fail[RouteResult](RouteNotFoundMessage, envelope.KindRouteNotFound)
	}

	return envelope.OK(RouteResult(resp.Data))
}

func (s *RouteService) fetch(ctx context.Context, q RouteQuery) (*routingResponse, error) {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+q.Values().Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("routing: build request: %w", err)
	}
	// net/http negotiates gzip and decompresses transparently.
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("routing: do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("routing: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("routing: unexpected status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var out routingResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("routing: unexpected response (status %d): %s", resp.StatusCode, truncate(body, 200))
	}
	return &out, nil
}

// providerError renders the provider's error field, which may be a string or an object.
func providerError(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return "Unknown error"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "Unknown error"
		}
		return s
	}
	return string(raw)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
