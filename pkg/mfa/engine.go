package mfa

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/veridia/device-trust/pkg/audit"
)

var (
	ErrChallengeNotFound  = errors.New("challenge does not exist")                     //404
	ErrChallengeExpired   = errors.New("challenge has expired")                        //410
	ErrChallengeExhausted = errors.New("challenge attempts exhausted")                 //429
	ErrInvalidResponse    = errors.New("challenge response does not match")            //401
	ErrNoUsableMethod     = errors.New("no enabled method matches the preferred list") //400
	ErrUnknownMethod      = errors.New("unknown MFA method")                           //400
)

// EngineConfig bounds every challenge the engine issues.
type EngineConfig struct {
	ChallengeTimeout time.Duration
	MaxAttempts      int
	EnabledMethods   []Method
}

// Engine issues and verifies MFA challenges. All challenge state lives in
// a single mutex-guarded map: verification and expiry for the same id are
// serialized on that lock, so at most one of them wins. At most one live
// challenge exists per (user, device) pair; issuing another supersedes it.
type Engine struct {
	mu         sync.Mutex
	challenges map[string]*liveChallenge
	byOwner    map[string]string
	expired    map[string]time.Time

	cfg      EngineConfig
	enabled  map[Method]bool
	notifier Notifier
	sink     audit.Sink
	logger   log.Logger
}

type liveChallenge struct {
	challenge Challenge
	timer     *time.Timer
}

func NewEngine(cfg EngineConfig, notifier Notifier, sink audit.Sink, logger log.Logger) *Engine {
	if cfg.ChallengeTimeout <= 0 {
		cfg.ChallengeTimeout = 120 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if len(cfg.EnabledMethods) == 0 {
		cfg.EnabledMethods = []Method{MethodTotp, MethodSms, MethodPush, MethodHardware, MethodBiometric}
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	enabled := make(map[Method]bool, len(cfg.EnabledMethods))
	for _, m := range cfg.EnabledMethods {
		enabled[m] = true
	}
	return &Engine{
		challenges: make(map[string]*liveChallenge),
		byOwner:    make(map[string]string),
		expired:    make(map[string]time.Time),
		cfg:        cfg,
		enabled:    enabled,
		notifier:   notifier,
		sink:       sink,
		logger:     logger,
	}
}

// Issue creates a challenge for the principal, choosing the method from
// the intersection of preferred and enabled methods. When the risk band is
// high, strong methods win regardless of preference order. The call
// returns once the challenge is stored; SMS/push dispatch runs in the
// background and a delivery failure does not undo the challenge.
func (e *Engine) Issue(ctx context.Context, userId string, deviceId string, preferred []Method, riskBand string) (Challenge, error) {
	method, err := e.selectMethod(preferred, riskBand)
	if err != nil {
		return Challenge{}, err
	}

	payload, err := newPayload(method)
	if err != nil {
		return Challenge{}, err
	}

	now := time.Now().UTC()
	c := Challenge{
		Id:          uuid.New().String(),
		DeviceId:    deviceId,
		UserId:      userId,
		Method:      method,
		Payload:     payload,
		CreatedAt:   now,
		ExpiresAt:   now.Add(e.cfg.ChallengeTimeout),
		MaxAttempts: e.cfg.MaxAttempts,
	}

	e.mu.Lock()
	// One live challenge per (user, device): a re-issued login supersedes
	// the outstanding challenge instead of stacking a second one.
	owner := ownerKey(userId, deviceId)
	if oldId, ok := e.byOwner[owner]; ok {
		e.removeLocked(oldId)
	}
	live := &liveChallenge{challenge: c}
	live.timer = time.AfterFunc(e.cfg.ChallengeTimeout, func() {
		e.expire(c.Id)
	})
	e.challenges[c.Id] = live
	e.byOwner[owner] = c.Id
	e.mu.Unlock()

	e.dispatch(c)

	return c, nil
}

// Verify checks a response against the challenge. Expired and exhausted
// challenges are deleted as a side effect; both states are terminal, the
// only recovery is issuing a new challenge.
func (e *Engine) Verify(ctx context.Context, challengeId string, response string) (VerificationResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	live, ok := e.challenges[challengeId]
	if !ok {
		// The expiry timer may have already collected the challenge; a
		// late verify still reports expired, not missing.
		if _, wasLive := e.expired[challengeId]; wasLive {
			return VerificationResult{}, ErrChallengeExpired
		}
		return VerificationResult{}, ErrChallengeNotFound
	}
	c := &live.challenge

	now := time.Now().UTC()
	if now.After(c.ExpiresAt) {
		e.removeLocked(challengeId)
		e.markExpiredLocked(challengeId, now)
		e.publishOutcome(ctx, *c, "expired")
		return VerificationResult{}, ErrChallengeExpired
	}
	if c.Attempts >= c.MaxAttempts {
		e.removeLocked(challengeId)
		e.publishOutcome(ctx, *c, "exhausted")
		return VerificationResult{}, ErrChallengeExhausted
	}

	c.Attempts++

	if e.responseMatches(*c, response, now) {
		c.Verified = true
		result := VerificationResult{
			ChallengeId: c.Id,
			Verified:    true,
			Attempts:    c.Attempts,
			MaxAttempts: c.MaxAttempts,
		}
		e.removeLocked(challengeId)
		e.publishOutcome(ctx, *c, "success")
		return result, nil
	}

	result := VerificationResult{
		ChallengeId:       c.Id,
		Attempts:          c.Attempts,
		MaxAttempts:       c.MaxAttempts,
		AttemptsRemaining: c.MaxAttempts - c.Attempts,
	}
	if c.Attempts*2 >= c.MaxAttempts {
		result.SuggestedFallbacks = e.enabledFallbacks(c.Method)
	}
	e.publishOutcome(ctx, *c, "failure")
	return result, ErrInvalidResponse
}

// SwitchMethod replaces the challenge with a fresh one for the same
// principal using newMethod. The attempt counter does not carry over.
func (e *Engine) SwitchMethod(ctx context.Context, challengeId string, newMethod Method) (Challenge, error) {
	if !ValidMethod(newMethod) {
		return Challenge{}, ErrUnknownMethod
	}

	e.mu.Lock()
	live, ok := e.challenges[challengeId]
	if !ok {
		e.mu.Unlock()
		return Challenge{}, ErrChallengeNotFound
	}
	old := live.challenge
	e.removeLocked(challengeId)
	e.mu.Unlock()

	return e.Issue(ctx, old.UserId, old.DeviceId, []Method{newMethod}, RiskBandLow)
}

// Get returns a copy of the live challenge without its payload.
func (e *Engine) Get(challengeId string) (Challenge, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	live, ok := e.challenges[challengeId]
	if !ok {
		return Challenge{}, ErrChallengeNotFound
	}
	c := live.challenge
	c.Payload = ""
	return c, nil
}

// Live reports the number of outstanding challenges.
func (e *Engine) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.challenges)
}

func (e *Engine) selectMethod(preferred []Method, riskBand string) (Method, error) {
	if len(preferred) == 0 {
		preferred = e.cfg.EnabledMethods
	}
	for _, m := range preferred {
		if !ValidMethod(m) {
			return "", ErrUnknownMethod
		}
	}
	if riskBand == RiskBandHigh {
		for _, m := range preferred {
			if e.enabled[m] && strongMethods[m] {
				return m, nil
			}
		}
	}
	for _, m := range preferred {
		if e.enabled[m] {
			return m, nil
		}
	}
	return "", ErrNoUsableMethod
}

func (e *Engine) enabledFallbacks(m Method) []Method {
	var out []Method
	for _, fb := range fallbackTable[m] {
		if e.enabled[fb] {
			out = append(out, fb)
		}
	}
	return out
}

func (e *Engine) responseMatches(c Challenge, response string, now time.Time) bool {
	switch c.Method {
	case MethodTotp:
		return totpMatches(c.Payload, response, now)
	default:
		return constantTimeEquals(c.Payload, response)
	}
}

// dispatch pushes the challenge material out of band. TOTP needs no
// delivery, the client derives codes from its provisioned secret.
func (e *Engine) dispatch(c Challenge) {
	switch c.Method {
	case MethodSms:
		go func() {
			if err := e.notifier.SendSMS(context.Background(), c.UserId, c.Payload); err != nil {
				level.Warn(e.logger).Log("err", err, "msg", "Could not dispatch SMS challenge "+c.Id)
			}
		}()
	case MethodPush:
		go func() {
			if err := e.notifier.SendPush(context.Background(), c.UserId, c); err != nil {
				level.Warn(e.logger).Log("err", err, "msg", "Could not dispatch push challenge "+c.Id)
			}
		}()
	}
}

// expire is the timer callback. It races Verify for the engine lock; the
// loser observes the challenge already gone.
func (e *Engine) expire(challengeId string) {
	e.mu.Lock()
	live, ok := e.challenges[challengeId]
	if !ok {
		e.mu.Unlock()
		return
	}
	c := live.challenge
	e.removeLocked(challengeId)
	e.markExpiredLocked(challengeId, time.Now().UTC())
	e.mu.Unlock()

	level.Info(e.logger).Log("msg", "challenge "+challengeId+" expired", "method", c.Method)
	e.publishOutcome(context.Background(), c, "expired")
}

// markExpiredLocked records a tombstone for an expired challenge and prunes
// stale ones. Caller holds e.mu.
func (e *Engine) markExpiredLocked(challengeId string, now time.Time) {
	for id, t := range e.expired {
		if now.Sub(t) > 10*time.Minute {
			delete(e.expired, id)
		}
	}
	e.expired[challengeId] = now
}

// removeLocked deletes the challenge and cancels its timer. Caller holds
// e.mu.
func (e *Engine) removeLocked(challengeId string) {
	live, ok := e.challenges[challengeId]
	if !ok {
		return
	}
	if live.timer != nil {
		live.timer.Stop()
	}
	delete(e.challenges, challengeId)
	delete(e.byOwner, ownerKey(live.challenge.UserId, live.challenge.DeviceId))
}

func (e *Engine) publishOutcome(ctx context.Context, c Challenge, outcome string) {
	if e.sink == nil {
		return
	}
	_ = e.sink.Ingest(ctx, audit.Event{
		Id:       uuid.New().String(),
		Kind:     audit.KindMfaVerification,
		DeviceId: c.DeviceId,
		UserId:   c.UserId,
		Message:  outcome,
		Details: map[string]string{
			"challenge_id": c.Id,
			"method":       string(c.Method),
			"attempts":     strconv.Itoa(c.Attempts),
		},
		Timestamp: time.Now().UTC(),
	})
}

func ownerKey(userId string, deviceId string) string {
	return userId + "/" + deviceId
}

func newPayload(method Method) (string, error) {
	switch method {
	case MethodTotp:
		return NewTotpSecret()
	case MethodSms, MethodPush:
		return newNumericCode(6)
	case MethodHardware, MethodBiometric:
		return newNonce(32)
	default:
		return "", ErrUnknownMethod
	}
}

func newNumericCode(digits int) (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < digits; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}

func newNonce(bytes int) (string, error) {
	buf := make([]byte, bytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func constantTimeEquals(a, b string) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
