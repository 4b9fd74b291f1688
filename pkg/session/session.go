package session

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	stdjwt "github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"

	"github.com/veridia/device-trust/pkg/audit"
	"github.com/veridia/device-trust/pkg/trust"
)

// Restrictions attached to sessions below the full-access band.
const (
	RestrictionLimitedNetwork = "limited_network_access"
	RestrictionManualReview   = "manual_review_pending"
)

var (
	ErrTokenInvalid   = errors.New("session token is invalid") //401
	ErrSessionRevoked = errors.New("session has been revoked") //401
	ErrSessionExpired = errors.New("session has expired")      //401
)

// Session is a bounded access grant tied to the trust score computed at
// issuance. Sessions die with their device: the registry revokes them the
// moment the device leaves ACTIVE.
type Session struct {
	Id           string    `json:"id"`
	Token        string    `json:"token"`
	DeviceId     string    `json:"device_id"`
	TrustScore   int       `json:"trust_score"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	Restrictions []string  `json:"restrictions"`
}

// Claims is the JWT payload of a session token.
type Claims struct {
	TrustScore   int      `json:"trust_score"`
	Restrictions []string `json:"restrictions,omitempty"`
	stdjwt.StandardClaims
}

// Issuer mints HS256 session tokens and tracks them for revocation.
type Issuer struct {
	mu         sync.Mutex
	signingKey []byte
	duration   time.Duration
	sessions   map[string]Session
	byDevice   map[string][]string
	sink       audit.Sink
}

// DefaultDuration is the session lifetime when none is configured: 8 hours.
const DefaultDuration = 8 * time.Hour

func NewIssuer(signingKey string, duration time.Duration, sink audit.Sink) *Issuer {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Issuer{
		signingKey: []byte(signingKey),
		duration:   duration,
		sessions:   make(map[string]Session),
		byDevice:   make(map[string][]string),
		sink:       sink,
	}
}

// Grant issues a session for the device. Restrictions follow the decision
// band of the trust score: full-band sessions are unrestricted, challenge
// band sessions get limited network access, and high-risk sessions stay
// network-limited and flagged until a manual review clears them.
func (i *Issuer) Grant(ctx context.Context, deviceId string, trustScore int) (Session, error) {
	restrictions := []string{}
	switch trust.BandFor(trustScore) {
	case trust.BandChallenge:
		restrictions = append(restrictions, RestrictionLimitedNetwork)
	case trust.BandHighRisk:
		restrictions = append(restrictions, RestrictionLimitedNetwork, RestrictionManualReview)
	}

	now := time.Now().UTC()
	s := Session{
		Id:           uuid.New().String(),
		DeviceId:     deviceId,
		TrustScore:   trustScore,
		IssuedAt:     now,
		ExpiresAt:    now.Add(i.duration),
		Restrictions: restrictions,
	}

	claims := Claims{
		TrustScore:   trustScore,
		Restrictions: restrictions,
		StandardClaims: stdjwt.StandardClaims{
			Id:        s.Id,
			Subject:   deviceId,
			IssuedAt:  now.Unix(),
			ExpiresAt: s.ExpiresAt.Unix(),
		},
	}
	token, err := stdjwt.NewWithClaims(stdjwt.SigningMethodHS256, claims).SignedString(i.signingKey)
	if err != nil {
		return Session{}, err
	}
	s.Token = token

	i.mu.Lock()
	i.sessions[s.Id] = s
	i.byDevice[deviceId] = append(i.byDevice[deviceId], s.Id)
	i.mu.Unlock()

	i.publish(ctx, audit.KindSessionGranted, s)
	return s, nil
}

// Revoke invalidates every live session the device owns.
func (i *Issuer) Revoke(ctx context.Context, deviceId string) error {
	i.mu.Lock()
	ids := i.byDevice[deviceId]
	revoked := make([]Session, 0, len(ids))
	for _, id := range ids {
		if s, ok := i.sessions[id]; ok {
			revoked = append(revoked, s)
			delete(i.sessions, id)
		}
	}
	delete(i.byDevice, deviceId)
	i.mu.Unlock()

	for _, s := range revoked {
		i.publish(ctx, audit.KindSessionRevoked, s)
	}
	return nil
}

// Validate parses and verifies a token, then checks the session is still
// live (not revoked with its device).
func (i *Issuer) Validate(ctx context.Context, token string) (Session, error) {
	var claims Claims
	parsed, err := stdjwt.ParseWithClaims(token, &claims, func(t *stdjwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*stdjwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return i.signingKey, nil
	})
	if err != nil || !parsed.Valid {
		if verr, ok := err.(*stdjwt.ValidationError); ok && verr.Errors&stdjwt.ValidationErrorExpired != 0 {
			return Session{}, ErrSessionExpired
		}
		return Session{}, ErrTokenInvalid
	}

	i.mu.Lock()
	s, ok := i.sessions[claims.Id]
	i.mu.Unlock()
	if !ok {
		return Session{}, ErrSessionRevoked
	}
	return s, nil
}

// LiveSessions returns the number of live sessions for a device.
func (i *Issuer) LiveSessions(deviceId string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.byDevice[deviceId])
}

func (i *Issuer) publish(ctx context.Context, kind string, s Session) {
	if i.sink == nil {
		return
	}
	_ = i.sink.Ingest(ctx, audit.Event{
		Id:       uuid.New().String(),
		Kind:     kind,
		DeviceId: s.DeviceId,
		Message:  kind,
		Details: map[string]string{
			"session_id":  s.Id,
			"trust_score": strconv.Itoa(s.TrustScore),
		},
		Timestamp: time.Now().UTC(),
	})
}
