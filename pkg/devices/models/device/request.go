package device

// EnrollRequest is the payload accepted by the registry's enrollment
// operation. SerialNumber plus at least one MAC address are mandatory.
type EnrollRequest struct {
	Alias        string   `json:"alias,omitempty"`
	ProcessorId  string   `json:"processor_id,omitempty"`
	MacAddresses []string `json:"mac_addresses"`
	SerialNumber string   `json:"serial_number"`
	TpmPresent   bool     `json:"tpm_present"`
	OsName       string   `json:"os_name,omitempty"`
	OsVersion    string   `json:"os_version,omitempty"`
	// Channel names the enrollment source, e.g. "autopilot", "intune",
	// "jamf" or "manual".
	Channel string `json:"channel"`
	Actor   string `json:"actor,omitempty"`
}

// automatedChannels enroll straight into ACTIVE; anything else starts
// INACTIVE and waits for an operator to activate it.
var automatedChannels = map[string]bool{
	"autopilot": true,
	"intune":    true,
	"jamf":      true,
}

// AutomatedChannel reports whether the enrollment channel is a trusted
// zero-touch provisioning source.
func AutomatedChannel(channel string) bool {
	return automatedChannels[channel]
}
