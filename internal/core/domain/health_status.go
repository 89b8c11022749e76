package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the liveness state reported by the health endpoint.
type Status string

const (
	StatusUp   Status = "UP"
	StatusDown Status = "DOWN"
)

// ParseStatus parses a status string case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusUp:
		return StatusUp, nil
	case StatusDown:
		return StatusDown, nil
	default:
		return "", fmt.Errorf("unknown health status %q", s)
	}
}

// DefaultChainDescription describes the three-tier chain the server is provisioned with.
const DefaultChainDescription = "root -> intermediate -> server"

// HealthStatus is a read-only snapshot recomputed on every health request.
type HealthStatus struct {
	Status           Status    `json:"status" yaml:"status"`
	Timestamp        time.Time `json:"timestamp" yaml:"timestamp"`
	TLSEnabled       bool      `json:"tlsEnabled" yaml:"tlsEnabled"`
	ChainDescription string    `json:"chainDescription" yaml:"chainDescription"`
}

// IsUp reports whether the status is UP.
func (h HealthStatus) IsUp() bool {
	return h.Status == StatusUp
}

func (h HealthStatus) String() string {
	return fmt.Sprintf("HealthStatus{status=%s, timestamp=%s, tlsEnabled=%t, chainDescription='%s'}",
		h.Status, h.Timestamp.Format(time.RFC3339Nano), h.TLSEnabled, h.ChainDescription)
}

// MarshalJSON writes the timestamp in RFC 3339 with nanoseconds.
func (h HealthStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Status           Status `json:"status"`
		Timestamp        string `json:"timestamp"`
		TLSEnabled       bool   `json:"tlsEnabled"`
		ChainDescription string `json:"chainDescription"`
	}{
		Status:           h.Status,
		Timestamp:        formatTimestamp(h.Timestamp),
		TLSEnabled:       h.TLSEnabled,
		ChainDescription: h.ChainDescription,
	})
}

// UnmarshalJSON requires a known status. The legacy "ssl" and "certificateChain"
// keys are accepted when the current names are absent.
func (h *HealthStatus) UnmarshalJSON(data []byte) error {
	var wire struct {
		Status           *string `json:"status"`
		Timestamp        *string `json:"timestamp"`
		TLSEnabled       *bool   `json:"tlsEnabled"`
		ChainDescription *string `json:"chainDescription"`
		SSL              *string `json:"ssl"`
		CertificateChain *string `json:"certificateChain"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("health status: %w", err)
	}
	if wire.Status == nil {
		return fmt.Errorf("health status: missing field %q", "status")
	}

	status, err := ParseStatus(*wire.Status)
	if err != nil {
		return fmt.Errorf("health status: %w", err)
	}

	out := HealthStatus{Status: status}

	if wire.Timestamp != nil && *wire.Timestamp != "" {
		ts, err := parseTimestamp(*wire.Timestamp)
		if err != nil {
			return fmt.Errorf("health status: %w", err)
		}
		out.Timestamp = ts
	} else {
		out.Timestamp = time.Now()
	}

	switch {
	case wire.TLSEnabled != nil:
		out.TLSEnabled = *wire.TLSEnabled
	case wire.SSL != nil:
		out.TLSEnabled = strings.EqualFold(*wire.SSL, "enabled")
	}

	switch {
	case wire.ChainDescription != nil:
		out.ChainDescription = *wire.ChainDescription
	case wire.CertificateChain != nil:
		out.ChainDescription = *wire.CertificateChain
	}

	*h = out
	return nil
}
