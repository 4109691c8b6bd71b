package ephemeris

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	domain "transit_notification_engine/internal/domain/ephemeris"
	"transit_notification_engine/internal/infra/metrics"
)

// HTTPProvider implements the domain Provider interface against an external
// ephemeris HTTP service. The engine does no astronomical math itself; this
// adapter is the only place positions come from.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPProvider builds a provider client. The timeout caps the whole
// request; callers see a provider-unavailable error when it trips.
func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type positionsResponse struct {
	Positions []struct {
		Body      string  `json:"body"`
		Longitude float64 `json:"longitude"`
		Latitude  float64 `json:"latitude"`
	} `json:"positions"`
}

// PositionsAt fetches positions for the given bodies at one instant.
func (p *HTTPProvider) PositionsAt(ctx context.Context, bodies []domain.BodyID, ts time.Time) (map[domain.BodyID]domain.Position, error) {
	if err := domain.ValidateTimestamp(ts); err != nil {
		return nil, err
	}

	names := make([]string, len(bodies))
	for i, b := range bodies {
		names[i] = string(b)
	}
	endpoint := fmt.Sprintf("%s/positions?bodies=%s&at=%s",
		p.baseURL,
		url.QueryEscape(strings.Join(names, ",")),
		url.QueryEscape(ts.UTC().Format(time.RFC3339)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building provider request: %w", err)
	}

	started := time.Now()
	resp, err := p.client.Do(req)
	metrics.ObserveProviderCall(time.Since(started))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return nil, fmt.Errorf("%w: provider rejected timestamp %s", domain.ErrInvalidTimestamp, ts.Format(time.RFC3339))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: provider returned status %d", domain.ErrProviderUnavailable, resp.StatusCode)
	}

	var body positionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: malformed provider response: %v", domain.ErrProviderUnavailable, err)
	}

	out := make(map[domain.BodyID]domain.Position, len(body.Positions))
	for _, pos := range body.Positions {
		id := domain.BodyID(pos.Body)
		out[id] = domain.Position{
			Body:      id,
			Timestamp: ts,
			Longitude: domain.NormalizeLongitude(pos.Longitude),
			Latitude:  pos.Latitude,
		}
	}
	return out, nil
}
