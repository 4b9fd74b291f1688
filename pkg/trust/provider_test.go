package trust

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestFetchComplianceScore(t *testing.T) {
	testCases := []struct {
		name     string
		provider Provider
		score    int
		known    bool
	}{
		{"No provider configured", nil, NeutralCompliance(), false},
		{"Healthy provider", StaticProvider{Score: 90}, 90, true},
		{"Failing provider", StaticProvider{Err: errors.New("connection refused")}, NeutralCompliance(), false},
		{"Score above range is clamped", StaticProvider{Score: 250}, 100, true},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("Testing %s", tc.name), func(t *testing.T) {
			score, known := FetchComplianceScore(context.Background(), tc.provider, "device-1", time.Second)
			if score != tc.score {
				t.Errorf("Got score is %d; want %d", score, tc.score)
			}
			if known != tc.known {
				t.Errorf("Got known is %t; want %t", known, tc.known)
			}
		})
	}
}
