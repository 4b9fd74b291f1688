package ca

import (
	"context"

	"github.com/veridia/device-trust/pkg/devices/models/device"
)

// CertificateAuthority issues and revokes device identity certificates.
// Real PKI backends (Vault, EST, cloud CA) implement this interface; the
// registry only depends on the interface.
type CertificateAuthority interface {
	IssueCertificate(ctx context.Context, deviceId string, subject string, issuer string) (device.DeviceCert, error)
	Revoke(ctx context.Context, certId string) error
}
