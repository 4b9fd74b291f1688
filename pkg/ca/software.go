package ca

import (
	"context"
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veridia/device-trust/pkg/devices/models/device"
)

// SoftwareCA is a self-contained certificate authority used when no
// external PKI is wired in. Serial numbers come from crypto/rand.
type SoftwareCA struct {
	mu       sync.Mutex
	issuer   string
	validity time.Duration
	revoked  map[string]bool
}

// DefaultValidity is the identity certificate window: 2 years.
const DefaultValidity = 2 * 365 * 24 * time.Hour

func NewSoftwareCA(issuer string) *SoftwareCA {
	return &SoftwareCA{
		issuer:   issuer,
		validity: DefaultValidity,
		revoked:  make(map[string]bool),
	}
}

func (c *SoftwareCA) IssueCertificate(ctx context.Context, deviceId string, subject string, issuer string) (device.DeviceCert, error) {
	serial, err := newSerialNumber()
	if err != nil {
		return device.DeviceCert{}, err
	}
	if issuer == "" {
		issuer = c.issuer
	}
	now := time.Now().UTC()
	cert := device.DeviceCert{
		Id:           uuid.New().String(),
		DeviceId:     deviceId,
		Subject:      subject,
		Issuer:       issuer,
		SerialNumber: serial,
		Thumbprint:   thumbprint(serial, subject, issuer),
		ValidFrom:    now,
		ValidTo:      now.Add(c.validity),
		Status:       device.CertValid,
	}
	return cert, nil
}

func (c *SoftwareCA) Revoke(ctx context.Context, certId string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoked[certId] = true
	return nil
}

// IsRevoked reports whether the CA has recorded a revocation for certId.
func (c *SoftwareCA) IsRevoked(certId string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revoked[certId]
}

func newSerialNumber() (string, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return insertNth(toHexInt(n), 2), nil
}

func thumbprint(parts ...string) string {
	sum := sha1.Sum([]byte(strings.Join(parts, "/")))
	return hex.EncodeToString(sum[:])
}

func insertNth(s string, n int) string {
	if len(s)%2 != 0 {
		s = "0" + s
	}
	var b strings.Builder
	for i, r := range s {
		b.WriteRune(r)
		if i%n == n-1 && i != len(s)-1 {
			b.WriteRune('-')
		}
	}
	return b.String()
}

func toHexInt(n *big.Int) string {
	return fmt.Sprintf("%x", n)
}
