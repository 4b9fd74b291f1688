package mfa

import (
	"context"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Notifier delivers challenge material out of band. Delivery failures are
// non-fatal to challenge creation; retry with backoff belongs to the
// implementation or its caller, never to the engine.
type Notifier interface {
	SendSMS(ctx context.Context, userId string, payload string) error
	SendPush(ctx context.Context, userId string, challenge Challenge) error
}

// NopNotifier drops every notification. Default when no gateway is wired.
type NopNotifier struct{}

func (NopNotifier) SendSMS(ctx context.Context, userId string, payload string) error {
	return nil
}

func (NopNotifier) SendPush(ctx context.Context, userId string, challenge Challenge) error {
	return nil
}

// LoggerNotifier writes notifications to the log instead of a real
// SMS/push gateway. Used for local runs.
type LoggerNotifier struct {
	Logger log.Logger
}

func (n LoggerNotifier) SendSMS(ctx context.Context, userId string, payload string) error {
	level.Info(n.Logger).Log("msg", "SMS challenge dispatched", "user_id", userId)
	return nil
}

func (n LoggerNotifier) SendPush(ctx context.Context, userId string, challenge Challenge) error {
	level.Info(n.Logger).Log("msg", "push challenge dispatched", "user_id", userId, "challenge_id", challenge.Id)
	return nil
}
