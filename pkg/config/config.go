package config

import "github.com/kelseyhightower/envconfig"

type Config struct {
	Port     string `default:"8085"`
	Protocol string `default:"http"`

	CertFile string
	KeyFile  string

	MutualTLSEnabled  bool `default:"false"`
	MutualTLSClientCA string

	PostgresUser     string
	PostgresDB       string
	PostgresPassword string
	PostgresHostname string
	PostgresPort     string `default:"5432"`

	// Store selects the device/session backing store: "memory" or "db".
	Store string `default:"memory"`

	SessionSigningKey string `default:"changeme-dev-only"`
	SessionDuration   string `default:"8h"`

	ChallengeTimeout     string `default:"120s"`
	ChallengeMaxAttempts int    `default:"3"`
	EnabledMfaMethods    string `default:"totp,sms,push,hardware,biometric"`

	TrustedLocations string `default:"corporate-hq,branch-office,vpn"`

	ComplianceAddress string
	ComplianceTimeout string `default:"2s"`

	OpenapiEnableSecuritySchema     bool `default:"false"`
	OpenapiSecurityOidcWellKnownUrl string
}

func NewConfig(prefix string) (error, Config) {
	var cfg Config
	err := envconfig.Process(prefix, &cfg)
	if err != nil {
		return err, Config{}
	}
	return nil, cfg
}
