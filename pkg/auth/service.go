package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	devicesApi "github.com/veridia/device-trust/pkg/devices/api"
	devicesModel "github.com/veridia/device-trust/pkg/devices/models/device"
	"github.com/veridia/device-trust/pkg/mfa"
	"github.com/veridia/device-trust/pkg/session"
	"github.com/veridia/device-trust/pkg/trust"
)

type Service interface {
	Health(ctx context.Context) bool
	Authenticate(ctx context.Context, req AuthRequest) (AuthDecision, error)
	CompleteChallenge(ctx context.Context, challengeId string, response string) (AuthDecision, error)
	SwitchMethod(ctx context.Context, challengeId string, newMethod mfa.Method) (AuthDecision, error)
	ValidateSession(ctx context.Context, token string) (session.Session, error)
}

// AuthRequest describes one authentication attempt.
type AuthRequest struct {
	DeviceId         string       `json:"device_id"`
	UserId           string       `json:"user_id"`
	Method           string       `json:"method"`
	Location         string       `json:"location"`
	PreferredMethods []mfa.Method `json:"preferred_methods,omitempty"`
}

// Authentication outcomes. Every attempt resolves to exactly one of these.
const (
	OutcomeGranted   = "GRANTED"
	OutcomeChallenge = "CHALLENGE_REQUIRED"
	OutcomeDenied    = "DENIED"
)

// ChallengeInfo is the caller-visible slice of a pending challenge.
type ChallengeInfo struct {
	Id                 string       `json:"id"`
	Method             mfa.Method   `json:"method"`
	ExpiresAt          time.Time    `json:"expires_at"`
	AttemptsRemaining  int          `json:"attempts_remaining,omitempty"`
	SuggestedFallbacks []mfa.Method `json:"suggested_fallbacks,omitempty"`
}

// AuthDecision is the resolution of an authentication attempt: a granted
// session, a pending challenge, or a denial with its reason.
type AuthDecision struct {
	Outcome      string           `json:"outcome"`
	TrustScore   int              `json:"trust_score,omitempty"`
	RiskFactors  []string         `json:"risk_factors,omitempty"`
	ManualReview bool             `json:"manual_review,omitempty"`
	Session      *session.Session `json:"session,omitempty"`
	Challenge    *ChallengeInfo   `json:"challenge,omitempty"`
	Reason       string           `json:"reason,omitempty"`
}

var (
	ErrDeviceInactive = errors.New("device is not active") //403
)

// pendingAuth is the score snapshot taken when a challenge was issued; a
// later verification grants with this score, not a rescoring.
type pendingAuth struct {
	deviceId     string
	trustScore   int
	riskFactors  []string
	manualReview bool
	expiresAt    time.Time
}

type authService struct {
	mtx               sync.Mutex
	devices           devicesApi.Service
	scorer            *trust.Scorer
	compliance        trust.Provider
	complianceTimeout time.Duration
	engine            *mfa.Engine
	issuer            *session.Issuer
	pending           map[string]pendingAuth
}

func NewAuthService(devices devicesApi.Service, scorer *trust.Scorer, compliance trust.Provider, complianceTimeout time.Duration, engine *mfa.Engine, issuer *session.Issuer) Service {
	if complianceTimeout <= 0 {
		complianceTimeout = 2 * time.Second
	}
	return &authService{
		devices:           devices,
		scorer:            scorer,
		compliance:        compliance,
		complianceTimeout: complianceTimeout,
		engine:            engine,
		issuer:            issuer,
		pending:           make(map[string]pendingAuth),
	}
}

func (s *authService) Health(ctx context.Context) bool {
	return true
}

func (s *authService) Authenticate(ctx context.Context, req AuthRequest) (AuthDecision, error) {
	d, err := s.devices.Get(ctx, req.DeviceId)
	if err != nil {
		return AuthDecision{Outcome: OutcomeDenied, Reason: "device not found"}, nil
	}
	if d.Status != devicesModel.StatusActive {
		return AuthDecision{Outcome: OutcomeDenied, Reason: "device is not active"}, nil
	}

	// Compliance is read once and treated as a snapshot; an unreachable
	// provider degrades the score, it never fails the attempt.
	complianceScore, complianceKnown := trust.FetchComplianceScore(ctx, s.compliance, req.DeviceId, s.complianceTimeout)

	score, riskFactors := s.scorer.Score(d, req.Method, req.Location, d.LastSeen, complianceScore, complianceKnown)
	band := trust.BandFor(score)

	_ = s.devices.Touch(ctx, req.DeviceId)

	if band == trust.BandFull {
		granted, err := s.issuer.Grant(ctx, req.DeviceId, score)
		if err != nil {
			return AuthDecision{}, err
		}
		return AuthDecision{
			Outcome:     OutcomeGranted,
			TrustScore:  score,
			RiskFactors: riskFactors,
			Session:     &granted,
		}, nil
	}

	riskBand := mfa.RiskBandMedium
	manualReview := false
	if band == trust.BandHighRisk {
		riskBand = mfa.RiskBandHigh
		manualReview = true
	}

	c, err := s.engine.Issue(ctx, req.UserId, req.DeviceId, req.PreferredMethods, riskBand)
	if err != nil {
		return AuthDecision{}, err
	}

	s.mtx.Lock()
	s.prunePendingLocked()
	s.pending[c.Id] = pendingAuth{
		deviceId:     req.DeviceId,
		trustScore:   score,
		riskFactors:  riskFactors,
		manualReview: manualReview,
		expiresAt:    c.ExpiresAt,
	}
	s.mtx.Unlock()

	return AuthDecision{
		Outcome:      OutcomeChallenge,
		TrustScore:   score,
		RiskFactors:  riskFactors,
		ManualReview: manualReview,
		Challenge: &ChallengeInfo{
			Id:        c.Id,
			Method:    c.Method,
			ExpiresAt: c.ExpiresAt,
		},
	}, nil
}

func (s *authService) CompleteChallenge(ctx context.Context, challengeId string, response string) (AuthDecision, error) {
	result, err := s.engine.Verify(ctx, challengeId, response)
	if err != nil {
		switch err {
		case mfa.ErrInvalidResponse:
			c, getErr := s.engine.Get(challengeId)
			info := &ChallengeInfo{
				Id:                 challengeId,
				AttemptsRemaining:  result.AttemptsRemaining,
				SuggestedFallbacks: result.SuggestedFallbacks,
			}
			if getErr == nil {
				info.Method = c.Method
				info.ExpiresAt = c.ExpiresAt
			}
			return AuthDecision{Outcome: OutcomeChallenge, Challenge: info}, err
		case mfa.ErrChallengeExpired, mfa.ErrChallengeExhausted, mfa.ErrChallengeNotFound:
			s.dropPending(challengeId)
			return AuthDecision{Outcome: OutcomeDenied, Reason: err.Error()}, err
		default:
			return AuthDecision{}, err
		}
	}

	s.mtx.Lock()
	pending, ok := s.pending[challengeId]
	delete(s.pending, challengeId)
	s.mtx.Unlock()
	if !ok {
		return AuthDecision{Outcome: OutcomeDenied, Reason: "no pending authentication for challenge"}, mfa.ErrChallengeNotFound
	}

	// The device may have left ACTIVE while the challenge was pending. A
	// correct response must not mint a session for it.
	d, getErr := s.devices.Get(ctx, pending.deviceId)
	if getErr != nil || d.Status != devicesModel.StatusActive {
		return AuthDecision{Outcome: OutcomeDenied, Reason: ErrDeviceInactive.Error()}, ErrDeviceInactive
	}

	granted, err := s.issuer.Grant(ctx, pending.deviceId, pending.trustScore)
	if err != nil {
		return AuthDecision{}, err
	}
	return AuthDecision{
		Outcome:      OutcomeGranted,
		TrustScore:   pending.trustScore,
		RiskFactors:  pending.riskFactors,
		ManualReview: pending.manualReview,
		Session:      &granted,
	}, nil
}

func (s *authService) SwitchMethod(ctx context.Context, challengeId string, newMethod mfa.Method) (AuthDecision, error) {
	c, err := s.engine.SwitchMethod(ctx, challengeId, newMethod)
	if err != nil {
		return AuthDecision{}, err
	}

	// Carry the pending score over to the replacement challenge.
	s.mtx.Lock()
	if pending, ok := s.pending[challengeId]; ok {
		delete(s.pending, challengeId)
		pending.expiresAt = c.ExpiresAt
		s.pending[c.Id] = pending
	}
	s.mtx.Unlock()

	return AuthDecision{
		Outcome: OutcomeChallenge,
		Challenge: &ChallengeInfo{
			Id:        c.Id,
			Method:    c.Method,
			ExpiresAt: c.ExpiresAt,
		},
	}, nil
}

func (s *authService) ValidateSession(ctx context.Context, token string) (session.Session, error) {
	return s.issuer.Validate(ctx, token)
}

func (s *authService) dropPending(challengeId string) {
	s.mtx.Lock()
	delete(s.pending, challengeId)
	s.mtx.Unlock()
}

// prunePendingLocked drops snapshots whose challenge can no longer be
// verified. Caller holds s.mtx.
func (s *authService) prunePendingLocked() {
	now := time.Now().UTC()
	for id, p := range s.pending {
		if now.After(p.expiresAt.Add(time.Minute)) {
			delete(s.pending, id)
		}
	}
}
