package session

import "time"

// AvailableBroadcast advertises an unclaimed device to the backend.
type AvailableBroadcast struct {
	HardwareID   string `json:"hardwareId"`
	DeviceInfo   string `json:"deviceInfo"`
	Version      string `json:"version"`
	Capabilities int    `json:"capabilities"`
}

// RegisterRequest claims an assigned module identity after connect.
type RegisterRequest struct {
	ModuleID string `json:"moduleId"`
}

// PingMessage is the periodic heartbeat while registered.
type PingMessage struct {
	ModuleID string `json:"moduleId"`
}

// StatusUpdate reports one locker's state upstream.
type StatusUpdate struct {
	ModuleID  string    `json:"moduleId"`
	LockerID  string    `json:"lockerId"`
	Status    string    `json:"status"`
	Occupied  *bool     `json:"occupied,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ConfigPush is the one-time provisioning message from the backend.
type ConfigPush struct {
	TargetIdentity string   `json:"targetIdentity"`
	ModuleID       string   `json:"moduleId"`
	LockerIDs      []string `json:"lockerIds"`
}

// ConfigSuccess acknowledges a verified configuration apply.
type ConfigSuccess struct {
	ModuleID string `json:"moduleId"`
}

// ConfigError reports a rejected configuration push.
type ConfigError struct {
	ModuleID string `json:"moduleId,omitempty"`
	Error    string `json:"error"`
	Expected string `json:"expected,omitempty"`
	Received string `json:"received,omitempty"`
}

// CommandMessage is an actuation command from the backend.
type CommandMessage struct {
	LockerID string `json:"lockerId"`
	Action   string `json:"action,omitempty"`
}

// NFCValidationRequest asks the backend to validate a scanned NFC code.
type NFCValidationRequest struct {
	NFCCode  string `json:"nfcCode"`
	ModuleID string `json:"moduleId"`
}

// NFCValidationResult is the backend's answer to a validation request.
type NFCValidationResult struct {
	NFCCode  string `json:"nfcCode"`
	Valid    bool   `json:"valid"`
	LockerID string `json:"lockerId,omitempty"`
}
