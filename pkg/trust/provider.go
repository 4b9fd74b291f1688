package trust

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Provider is the external compliance-policy collaborator. It is queried
// once per authentication attempt and its answer treated as a snapshot.
type Provider interface {
	GetComplianceScore(ctx context.Context, deviceId string) (int, error)
}

// FetchComplianceScore reads the compliance signal with a bounded timeout.
// A failure or timeout is absorbed: the neutral default is returned with
// ok=false so the scorer records compliance_unavailable instead of
// failing the attempt.
func FetchComplianceScore(ctx context.Context, provider Provider, deviceId string, timeout time.Duration) (int, bool) {
	if provider == nil {
		return neutralCompliance, false
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	score, err := provider.GetComplianceScore(ctx, deviceId)
	if err != nil {
		return neutralCompliance, false
	}
	return clamp(score, 0, 100), true
}

// HTTPProvider queries a compliance-policy service over HTTP.
type HTTPProvider struct {
	address string
	client  *http.Client
	logger  log.Logger
}

func NewHTTPProvider(address string, timeout time.Duration, logger log.Logger) *HTTPProvider {
	return &HTTPProvider{
		address: address,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (p *HTTPProvider) GetComplianceScore(ctx context.Context, deviceId string) (int, error) {
	url := fmt.Sprintf("%s/v1/compliance/%s/score", p.address, deviceId)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		level.Warn(p.logger).Log("err", err, "msg", "Could not reach compliance provider for device "+deviceId)
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("compliance provider returned status %d", resp.StatusCode)
	}

	var body struct {
		Score int `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, err
	}
	return body.Score, nil
}

// StaticProvider answers with a fixed score. Used in tests and local runs
// without a compliance service.
type StaticProvider struct {
	Score int
	Err   error
}

func (p StaticProvider) GetComplianceScore(ctx context.Context, deviceId string) (int, error) {
	if p.Err != nil {
		return 0, p.Err
	}
	return p.Score, nil
}
