package identity

import (
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"sync"
)

// Identity holds the device's identity.
//
// The hardware id is derived from the primary network interface MAC and is
// stable across restarts. The module id is assigned once by the backend
// during configuration; it is empty until then and is cleared only by a
// factory reset.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Identity struct {
	hardwareID string

	mu       sync.RWMutex
	moduleID string
}

// New creates an Identity with the given hardware id and the module id
// loaded from the settings store (empty if unconfigured).
func New(hardwareID, moduleID string) *Identity {
	return &Identity{
		hardwareID: hardwareID,
		moduleID:   moduleID,
	}
}

// Detect derives the hardware id from the first non-loopback network
// interface with a MAC address.
//
// The id is the MAC rendered as uppercase hex without separators
// (e.g. "A4CF12E90B3C"), matching what the backend prints on device labels.
//
// Parameters:
//   - override: If non-empty, used verbatim instead of probing interfaces
//     (bench setups and tests)
//
// Returns:
//   - string: The hardware id
//   - error: If no suitable interface exists
func Detect(override string) (string, error) {
	if override != "" {
		return strings.ToUpper(override), nil
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("listing network interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		return strings.ToUpper(hex.EncodeToString(iface.HardwareAddr)), nil
	}

	return "", ErrNoHardwareID
}

// HardwareID returns the immutable hardware-derived identifier.
func (i *Identity) HardwareID() string {
	return i.hardwareID
}

// ModuleID returns the backend-assigned module id, or "" if unconfigured.
func (i *Identity) ModuleID() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.moduleID
}

// IsConfigured reports whether a module id has been assigned.
func (i *Identity) IsConfigured() bool {
	return i.ModuleID() != ""
}

// SetModuleID records a newly assigned module id.
//
// Only the configuration handshake calls this; re-assignment of an already
// configured device is rejected there, not here.
func (i *Identity) SetModuleID(moduleID string) {
	i.mu.Lock()
	i.moduleID = moduleID
	i.mu.Unlock()
}
