package store

import (
	"context"

	"github.com/veridia/device-trust/pkg/devices/models/device"
)

// DB is the registry's backing store. Implementations must be safe for
// concurrent use; the service serializes status transitions on top of it.
type DB interface {
	InsertDevice(ctx context.Context, d device.Device) error
	SelectDeviceById(ctx context.Context, id string) (device.Device, error)
	SelectAllDevices(ctx context.Context) (device.Devices, error)
	UpdateDeviceStatusById(ctx context.Context, id string, status string) error
	UpdateDeviceTrustLevelById(ctx context.Context, id string, trustLevel string) error
	UpdateDeviceLastSeen(ctx context.Context, id string, lastSeen int64) error

	InsertCert(ctx context.Context, c device.DeviceCert) error
	SelectCertsByDeviceId(ctx context.Context, deviceId string) ([]device.DeviceCert, error)
	UpdateCertStatusById(ctx context.Context, certId string, status string) error

	InsertLifecycleEvent(ctx context.Context, e device.LifecycleEvent) error
	SelectLifecycleEventsByDeviceId(ctx context.Context, deviceId string) (device.LifecycleEvents, error)
}
