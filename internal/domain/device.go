package domain

import (
	"strings"
	"time"
)

// DeviceCapabilities carries hardware hints used only for scheduling
// metadata and execution-state reporting, never for eligibility.
type DeviceCapabilities struct {
	CPUTops float64
	GPUTops float64
	NPUTops float64
	RAMMB   int64
	Raw     string // capability text as received; the dispatch channel stores the JoinAvailableTasks argument JSON here
}

// HasGPU reports whether the capability string names a GPU, matched
// case-insensitively as the execution-state webGpuPreferred flag requires.
func (c DeviceCapabilities) HasGPU() bool {
	return strings.Contains(strings.ToLower(c.Raw), "gpu") || c.GPUTops > 0
}

// Device is a physical machine owned by a provider user.
type Device struct {
	ID                   string
	OwnerProviderUserID  string
	Capabilities         DeviceCapabilities
	Label                string
	CurrentSessionID     *string
	LastSeen             time.Time
	LastDisconnectReason string
}
