package session

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestGrant(t *testing.T) {
	issuer := NewIssuer("test-signing-key", time.Hour, nil)
	ctx := context.Background()

	testCases := []struct {
		name         string
		trustScore   int
		restrictions []string
	}{
		{"Full access score", 95, []string{}},
		{"Full access threshold", 80, []string{}},
		{"Challenge band score", 70, []string{RestrictionLimitedNetwork}},
		{"High risk boundary", 59, []string{RestrictionLimitedNetwork, RestrictionManualReview}},
		{"High risk score", 40, []string{RestrictionLimitedNetwork, RestrictionManualReview}},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("Testing %s", tc.name), func(t *testing.T) {
			s, err := issuer.Grant(ctx, "device-1", tc.trustScore)
			if err != nil {
				t.Fatalf("Got result is %s; want nil", err)
			}
			if s.Token == "" {
				t.Error("Granted session carries no token")
			}
			if len(s.Restrictions) != len(tc.restrictions) {
				t.Fatalf("Got %d restrictions %v; want %d", len(s.Restrictions), s.Restrictions, len(tc.restrictions))
			}
			for i := range s.Restrictions {
				if s.Restrictions[i] != tc.restrictions[i] {
					t.Errorf("Got restriction %s; want %s", s.Restrictions[i], tc.restrictions[i])
				}
			}
		})
	}
}

func TestValidate(t *testing.T) {
	issuer := NewIssuer("test-signing-key", time.Hour, nil)
	ctx := context.Background()

	s, err := issuer.Grant(ctx, "device-1", 85)
	if err != nil {
		t.Fatal("Could not grant session")
	}

	got, err := issuer.Validate(ctx, s.Token)
	if err != nil {
		t.Errorf("Got result is %s; want nil", err)
	}
	if got.Id != s.Id || got.DeviceId != "device-1" || got.TrustScore != 85 {
		t.Errorf("Got session %+v; want the granted one", got)
	}

	testCases := []struct {
		name  string
		token string
		ret   error
	}{
		{"Garbage token", "not-a-jwt", ErrTokenInvalid},
		{"Tampered signature", s.Token[:len(s.Token)-4] + "AAAA", ErrTokenInvalid},
		{"Wrong key", mintWithKey(t, "other-key"), ErrTokenInvalid},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("Testing %s", tc.name), func(t *testing.T) {
			_, err := issuer.Validate(ctx, tc.token)
			if tc.ret != err {
				t.Errorf("Got result is %s; want %s", err, tc.ret)
			}
		})
	}
}

func mintWithKey(t *testing.T, key string) string {
	t.Helper()
	other := NewIssuer(key, time.Hour, nil)
	s, err := other.Grant(context.Background(), "device-1", 85)
	if err != nil {
		t.Fatal("Could not grant session with alternate key")
	}
	return s.Token
}

func TestValidateExpiredToken(t *testing.T) {
	issuer := NewIssuer("test-signing-key", time.Millisecond, nil)
	ctx := context.Background()

	s, err := issuer.Grant(ctx, "device-1", 85)
	if err != nil {
		t.Fatal("Could not grant session")
	}

	// JWT timestamps have second resolution, wait out the boundary.
	time.Sleep(2100 * time.Millisecond)

	_, err = issuer.Validate(ctx, s.Token)
	if err != ErrSessionExpired {
		t.Errorf("Got result is %s; want %s", err, ErrSessionExpired)
	}
}

func TestRevoke(t *testing.T) {
	issuer := NewIssuer("test-signing-key", time.Hour, nil)
	ctx := context.Background()

	first, err := issuer.Grant(ctx, "device-1", 85)
	if err != nil {
		t.Fatal("Could not grant session")
	}
	second, err := issuer.Grant(ctx, "device-1", 90)
	if err != nil {
		t.Fatal("Could not grant session")
	}
	other, err := issuer.Grant(ctx, "device-2", 85)
	if err != nil {
		t.Fatal("Could not grant session")
	}

	if issuer.LiveSessions("device-1") != 2 {
		t.Errorf("Got live sessions is %d; want %d", issuer.LiveSessions("device-1"), 2)
	}

	if err := issuer.Revoke(ctx, "device-1"); err != nil {
		t.Fatal("Could not revoke sessions")
	}

	if issuer.LiveSessions("device-1") != 0 {
		t.Errorf("Got live sessions is %d; want %d", issuer.LiveSessions("device-1"), 0)
	}
	for _, token := range []string{first.Token, second.Token} {
		if _, err := issuer.Validate(ctx, token); err != ErrSessionRevoked {
			t.Errorf("Got result is %s; want %s", err, ErrSessionRevoked)
		}
	}

	// Sessions of other devices survive.
	if _, err := issuer.Validate(ctx, other.Token); err != nil {
		t.Errorf("Got result is %s; want nil", err)
	}
}

func TestTokenCarriesClaims(t *testing.T) {
	issuer := NewIssuer("test-signing-key", time.Hour, nil)
	s, err := issuer.Grant(context.Background(), "device-1", 70)
	if err != nil {
		t.Fatal("Could not grant session")
	}
	if parts := strings.Split(s.Token, "."); len(parts) != 3 {
		t.Errorf("Got %d token segments; want 3", len(parts))
	}
	if len(s.Restrictions) != 1 || s.Restrictions[0] != RestrictionLimitedNetwork {
		t.Errorf("Got restrictions %v; want [%s]", s.Restrictions, RestrictionLimitedNetwork)
	}
}
