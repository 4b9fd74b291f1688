package memory

import (
	"context"
	"sync"
	"time"

	apierrors "github.com/veridia/device-trust/pkg/api/errors"
	"github.com/veridia/device-trust/pkg/devices/models/device"
	"github.com/veridia/device-trust/pkg/devices/models/device/store"
)

// DB is a mutex-guarded in-memory registry store. It is the default
// backend and the one the tests run against.
type DB struct {
	mu      sync.RWMutex
	devices map[string]device.Device
	certs   map[string][]device.DeviceCert
	events  map[string][]device.LifecycleEvent
}

func NewDB() store.DB {
	return &DB{
		devices: make(map[string]device.Device),
		certs:   make(map[string][]device.DeviceCert),
		events:  make(map[string][]device.LifecycleEvent),
	}
}

func (db *DB) InsertDevice(ctx context.Context, d device.Device) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.devices[d.Id]; ok {
		return &apierrors.DuplicateResourceError{ResourceType: "DEVICE", ResourceId: d.Id}
	}
	d.Certificates = nil
	db.devices[d.Id] = d
	return nil
}

func (db *DB) SelectDeviceById(ctx context.Context, id string) (device.Device, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	d, ok := db.devices[id]
	if !ok {
		return device.Device{}, &apierrors.ResourceNotFoundError{ResourceType: "DEVICE", ResourceId: id}
	}
	d.Certificates = append([]device.DeviceCert(nil), db.certs[id]...)
	return d, nil
}

func (db *DB) SelectAllDevices(ctx context.Context) (device.Devices, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out device.Devices
	for id, d := range db.devices {
		d.Certificates = append([]device.DeviceCert(nil), db.certs[id]...)
		out.Devices = append(out.Devices, d)
	}
	return out, nil
}

func (db *DB) UpdateDeviceStatusById(ctx context.Context, id string, status string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	d, ok := db.devices[id]
	if !ok {
		return &apierrors.ResourceNotFoundError{ResourceType: "DEVICE", ResourceId: id}
	}
	d.Status = status
	db.devices[id] = d
	return nil
}

func (db *DB) UpdateDeviceTrustLevelById(ctx context.Context, id string, trustLevel string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	d, ok := db.devices[id]
	if !ok {
		return &apierrors.ResourceNotFoundError{ResourceType: "DEVICE", ResourceId: id}
	}
	d.TrustLevel = trustLevel
	db.devices[id] = d
	return nil
}

func (db *DB) UpdateDeviceLastSeen(ctx context.Context, id string, lastSeen int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	d, ok := db.devices[id]
	if !ok {
		return &apierrors.ResourceNotFoundError{ResourceType: "DEVICE", ResourceId: id}
	}
	d.LastSeen = time.Unix(lastSeen, 0).UTC()
	db.devices[id] = d
	return nil
}

func (db *DB) InsertCert(ctx context.Context, c device.DeviceCert) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.devices[c.DeviceId]; !ok {
		return &apierrors.ResourceNotFoundError{ResourceType: "DEVICE", ResourceId: c.DeviceId}
	}
	db.certs[c.DeviceId] = append(db.certs[c.DeviceId], c)
	return nil
}

func (db *DB) SelectCertsByDeviceId(ctx context.Context, deviceId string) ([]device.DeviceCert, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return append([]device.DeviceCert(nil), db.certs[deviceId]...), nil
}

func (db *DB) UpdateCertStatusById(ctx context.Context, certId string, status string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for deviceId, certs := range db.certs {
		for i, c := range certs {
			if c.Id == certId {
				certs[i].Status = status
				db.certs[deviceId] = certs
				return nil
			}
		}
	}
	return &apierrors.ResourceNotFoundError{ResourceType: "CERTIFICATE", ResourceId: certId}
}

func (db *DB) InsertLifecycleEvent(ctx context.Context, e device.LifecycleEvent) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.events[e.DeviceId] = append(db.events[e.DeviceId], e)
	return nil
}

func (db *DB) SelectLifecycleEventsByDeviceId(ctx context.Context, deviceId string) (device.LifecycleEvents, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return device.LifecycleEvents{Events: append([]device.LifecycleEvent(nil), db.events[deviceId]...)}, nil
}
