package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veridia/device-trust/pkg/audit"
	"github.com/veridia/device-trust/pkg/ca"
	devicesModel "github.com/veridia/device-trust/pkg/devices/models/device"
	devicesStore "github.com/veridia/device-trust/pkg/devices/models/device/store"
)

type Service interface {
	Health(ctx context.Context) bool
	Enroll(ctx context.Context, req devicesModel.EnrollRequest) (devicesModel.Device, []devicesModel.DeviceCert, error)
	UpdateStatus(ctx context.Context, deviceId string, newStatus string, reason string, actor string) (devicesModel.LifecycleEvent, error)
	Get(ctx context.Context, deviceId string) (devicesModel.Device, error)
	GetDevices(ctx context.Context) (devicesModel.Devices, error)
	GetDeviceEvents(ctx context.Context, deviceId string) (devicesModel.LifecycleEvents, error)
	SetTrustLevel(ctx context.Context, deviceId string, trustLevel string) error
	Touch(ctx context.Context, deviceId string) error
}

// SessionRevoker invalidates every live session owned by a device. The
// session issuer satisfies it; the registry calls it whenever a device
// leaves ACTIVE so no session outlives the transition.
type SessionRevoker interface {
	Revoke(ctx context.Context, deviceId string) error
}

type devicesService struct {
	mtx       sync.Mutex
	devicesDb devicesStore.DB
	authority ca.CertificateAuthority
	sessions  SessionRevoker
	auditSink audit.Sink
}

var (
	// Client errors
	ErrDeviceNotFound     = errors.New("device does not exist")                                       //404
	ErrEnrollmentRejected = errors.New("enrollment rejected, mandatory hardware fields missing")      //400
	ErrInvalidTransition  = errors.New("status transition not allowed")                               //400
	ErrMissingReason      = errors.New("reactivating a suspended device requires an explicit reason") //400
	ErrUnknownStatus      = errors.New("unknown device status")                                       //400
	ErrUnknownTrustLevel  = errors.New("unknown trust level")                                         //400
)

func NewDevicesService(devicesDb devicesStore.DB, authority ca.CertificateAuthority, sessions SessionRevoker, auditSink audit.Sink) Service {
	return &devicesService{
		devicesDb: devicesDb,
		authority: authority,
		sessions:  sessions,
		auditSink: auditSink,
	}
}

func (s *devicesService) Health(ctx context.Context) bool {
	return true
}

func (s *devicesService) Enroll(ctx context.Context, req devicesModel.EnrollRequest) (devicesModel.Device, []devicesModel.DeviceCert, error) {
	if req.SerialNumber == "" || len(req.MacAddresses) == 0 {
		return devicesModel.Device{}, nil, ErrEnrollmentRejected
	}

	status := devicesModel.StatusInactive
	trustLevel := devicesModel.TrustUnknown
	if devicesModel.AutomatedChannel(req.Channel) {
		status = devicesModel.StatusActive
		trustLevel = devicesModel.TrustMedium
	}

	now := time.Now().UTC()
	d := devicesModel.Device{
		Id:          uuid.New().String(),
		Alias:       req.Alias,
		Status:      status,
		TrustLevel:  trustLevel,
		Fingerprint: devicesModel.Fingerprint{
			ProcessorId:  req.ProcessorId,
			MacAddresses: req.MacAddresses,
			SerialNumber: req.SerialNumber,
			TpmPresent:   req.TpmPresent,
			OsName:       req.OsName,
			OsVersion:    req.OsVersion,
		},
		LastSeen:    now,
		EnrolledAt:  now,
		EnrolledVia: req.Channel,
	}

	err := s.devicesDb.InsertDevice(ctx, d)
	if err != nil {
		return devicesModel.Device{}, nil, err
	}

	subject := fmt.Sprintf("CN=%s", req.SerialNumber)
	cert, err := s.authority.IssueCertificate(ctx, d.Id, subject, "")
	if err != nil {
		return devicesModel.Device{}, nil, err
	}
	err = s.devicesDb.InsertCert(ctx, cert)
	if err != nil {
		return devicesModel.Device{}, nil, err
	}

	actor := req.Actor
	if actor == "" {
		actor = req.Channel
	}
	event := devicesModel.LifecycleEvent{
		Id:        uuid.New().String(),
		DeviceId:  d.Id,
		EventType: devicesModel.EventEnrollment,
		NewStatus: status,
		Initiator: actor,
		Reason:    "device enrolled via " + req.Channel,
		Timestamp: now,
	}
	err = s.devicesDb.InsertLifecycleEvent(ctx, event)
	if err != nil {
		return devicesModel.Device{}, nil, err
	}
	s.publishLifecycle(ctx, event)

	d, err = s.devicesDb.SelectDeviceById(ctx, d.Id)
	if err != nil {
		return devicesModel.Device{}, nil, err
	}
	return d, d.Certificates, nil
}

func (s *devicesService) UpdateStatus(ctx context.Context, deviceId string, newStatus string, reason string, actor string) (devicesModel.LifecycleEvent, error) {
	if !devicesModel.ValidStatus(newStatus) {
		return devicesModel.LifecycleEvent{}, ErrUnknownStatus
	}

	// Transitions are serialized so certificate and session revocation
	// commit atomically with the status change.
	s.mtx.Lock()
	defer s.mtx.Unlock()

	d, err := s.devicesDb.SelectDeviceById(ctx, deviceId)
	if err != nil {
		return devicesModel.LifecycleEvent{}, ErrDeviceNotFound
	}

	if !devicesModel.TransitionAllowed(d.Status, newStatus) {
		return devicesModel.LifecycleEvent{}, ErrInvalidTransition
	}
	if d.Status == devicesModel.StatusSuspended && newStatus == devicesModel.StatusActive && reason == "" {
		return devicesModel.LifecycleEvent{}, ErrMissingReason
	}

	err = s.devicesDb.UpdateDeviceStatusById(ctx, deviceId, newStatus)
	if err != nil {
		return devicesModel.LifecycleEvent{}, err
	}

	impact := devicesModel.Impact{}
	if devicesModel.RevokesCertificates(newStatus) {
		for _, cert := range d.Certificates {
			if cert.Status == devicesModel.CertRevoked {
				continue
			}
			if err := s.authority.Revoke(ctx, cert.Id); err != nil {
				return devicesModel.LifecycleEvent{}, err
			}
			if err := s.devicesDb.UpdateCertStatusById(ctx, cert.Id, devicesModel.CertRevoked); err != nil {
				return devicesModel.LifecycleEvent{}, err
			}
			impact.CertificatesRevoked++
		}
	}
	impact.DataWipeRequired = devicesModel.RequiresDataWipe(newStatus)

	if d.Status == devicesModel.StatusActive && newStatus != devicesModel.StatusActive {
		if s.sessions != nil {
			if err := s.sessions.Revoke(ctx, deviceId); err != nil {
				return devicesModel.LifecycleEvent{}, err
			}
		}
		impact.AccessRevoked = true
	}

	eventType := devicesModel.EventStatusChange
	if d.Status == devicesModel.StatusLost && newStatus == devicesModel.StatusActive {
		eventType = devicesModel.EventRecovery
	}
	event := devicesModel.LifecycleEvent{
		Id:             uuid.New().String(),
		DeviceId:       deviceId,
		EventType:      eventType,
		PreviousStatus: d.Status,
		NewStatus:      newStatus,
		Initiator:      actor,
		Reason:         reason,
		Timestamp:      time.Now().UTC(),
		Impact:         impact,
	}
	err = s.devicesDb.InsertLifecycleEvent(ctx, event)
	if err != nil {
		return devicesModel.LifecycleEvent{}, err
	}
	s.publishLifecycle(ctx, event)

	return event, nil
}

func (s *devicesService) Get(ctx context.Context, deviceId string) (devicesModel.Device, error) {
	d, err := s.devicesDb.SelectDeviceById(ctx, deviceId)
	if err != nil {
		return devicesModel.Device{}, ErrDeviceNotFound
	}
	return d, nil
}

func (s *devicesService) GetDevices(ctx context.Context) (devicesModel.Devices, error) {
	return s.devicesDb.SelectAllDevices(ctx)
}

func (s *devicesService) GetDeviceEvents(ctx context.Context, deviceId string) (devicesModel.LifecycleEvents, error) {
	_, err := s.devicesDb.SelectDeviceById(ctx, deviceId)
	if err != nil {
		return devicesModel.LifecycleEvents{}, ErrDeviceNotFound
	}
	return s.devicesDb.SelectLifecycleEventsByDeviceId(ctx, deviceId)
}

func (s *devicesService) SetTrustLevel(ctx context.Context, deviceId string, trustLevel string) error {
	switch trustLevel {
	case devicesModel.TrustUnknown, devicesModel.TrustLow, devicesModel.TrustMedium,
		devicesModel.TrustHigh, devicesModel.TrustCritical:
	default:
		return ErrUnknownTrustLevel
	}
	err := s.devicesDb.UpdateDeviceTrustLevelById(ctx, deviceId, trustLevel)
	if err != nil {
		return ErrDeviceNotFound
	}
	return nil
}

func (s *devicesService) Touch(ctx context.Context, deviceId string) error {
	err := s.devicesDb.UpdateDeviceLastSeen(ctx, deviceId, time.Now().UTC().Unix())
	if err != nil {
		return ErrDeviceNotFound
	}
	return nil
}

func (s *devicesService) publishLifecycle(ctx context.Context, event devicesModel.LifecycleEvent) {
	if s.auditSink == nil {
		return
	}
	// Audit delivery is best effort, a sink failure never blocks the
	// transition that already committed.
	_ = s.auditSink.Ingest(ctx, audit.Event{
		Id:       uuid.New().String(),
		Kind:     audit.KindLifecycle,
		DeviceId: event.DeviceId,
		Message:  event.PreviousStatus + " -> " + event.NewStatus,
		Details: map[string]string{
			"event_type": event.EventType,
			"initiator":  event.Initiator,
			"reason":     event.Reason,
		},
		Timestamp: event.Timestamp,
	})
}
