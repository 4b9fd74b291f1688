package api

import (
	"context"
	"fmt"
	"time"

	devicesModel "github.com/veridia/device-trust/pkg/devices/models/device"

	"github.com/go-kit/kit/metrics"
)

type instrumentingMiddleware struct {
	requestCount   metrics.Counter
	requestLatency metrics.Histogram
	next           Service
}

func NewInstrumentingMiddleware(counter metrics.Counter, latency metrics.Histogram) Middleware {
	return func(next Service) Service {
		return &instrumentingMiddleware{
			requestCount:   counter,
			requestLatency: latency,
			next:           next,
		}
	}
}

func (mw *instrumentingMiddleware) Health(ctx context.Context) bool {
	defer func(begin time.Time) {
		lvs := []string{"method", "Health", "error", "false"}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mw.next.Health(ctx)
}

func (mw *instrumentingMiddleware) Enroll(ctx context.Context, req devicesModel.EnrollRequest) (d devicesModel.Device, certs []devicesModel.DeviceCert, err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "Enroll", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mw.next.Enroll(ctx, req)
}

func (mw *instrumentingMiddleware) UpdateStatus(ctx context.Context, deviceId string, newStatus string, reason string, actor string) (event devicesModel.LifecycleEvent, err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "UpdateStatus", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mw.next.UpdateStatus(ctx, deviceId, newStatus, reason, actor)
}

func (mw *instrumentingMiddleware) Get(ctx context.Context, deviceId string) (d devicesModel.Device, err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "Get", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mw.next.Get(ctx, deviceId)
}

func (mw *instrumentingMiddleware) GetDevices(ctx context.Context) (d devicesModel.Devices, err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "GetDevices", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mw.next.GetDevices(ctx)
}

func (mw *instrumentingMiddleware) GetDeviceEvents(ctx context.Context, deviceId string) (events devicesModel.LifecycleEvents, err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "GetDeviceEvents", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mw.next.GetDeviceEvents(ctx, deviceId)
}

func (mw *instrumentingMiddleware) SetTrustLevel(ctx context.Context, deviceId string, trustLevel string) (err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "SetTrustLevel", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mw.next.SetTrustLevel(ctx, deviceId, trustLevel)
}

func (mw *instrumentingMiddleware) Touch(ctx context.Context, deviceId string) (err error) {
	defer func(begin time.Time) {
		lvs := []string{"method", "Touch", "error", fmt.Sprint(err != nil)}
		mw.requestCount.With(lvs...).Add(1)
		mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mw.next.Touch(ctx, deviceId)
}
