package session

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message kinds, canonical hyphenated form.
//
// Inbound kinds are normalised (underscores become hyphens) before
// dispatch, so either spelling on the wire maps to these constants.
const (
	// Device to server.
	KindRegister        = "register"
	KindModuleAvailable = "module-available"
	KindLockerStatus    = "locker-status"
	KindPing            = "ping"
	KindConfigSuccess   = "configuration-success"
	KindConfigError     = "configuration-error"
	KindValidateNFC     = "validate-nfc"

	// Server to device.
	KindModuleConfigured = "module-configured"
	KindLock             = "lock"
	KindUnlock           = "unlock"
	KindRegistered       = "registered"
	KindPong             = "pong"
	KindNFCResult        = "nfc-validation-result"
)

// Wire framings.
const (
	// FramingFlat is a flat JSON object with the kind in a "type" field
	// and the payload fields inline.
	FramingFlat = "flat"

	// FramingSocketIO is a text frame carrying an event code prefix and
	// a JSON array of kind and payload: 42["kind",{...}].
	FramingSocketIO = "socketio"
)

// socket.io-style event code prefix for FramingSocketIO frames.
const eventCodePrefix = "42"

// Envelope is one parsed protocol message: a kind and its raw payload.
//
// The envelope is the only message representation the rest of the
// system sees. Which wire framing produced or will carry it is decided
// entirely inside this package.
type Envelope struct {
	// Kind is the normalised message kind.
	Kind string

	// Payload is the raw JSON payload, ready to unmarshal into the
	// kind's message type.
	Payload json.RawMessage
}

// normaliseKind maps both wire spellings of a kind to the canonical
// hyphenated form.
func normaliseKind(kind string) string {
	return strings.ReplaceAll(kind, "_", "-")
}

// ParseEnvelope parses one inbound text frame into an Envelope.
//
// The framing is detected from the frame itself, so a session can parse
// either framing regardless of which one it is configured to emit:
//
//   - Frames starting with '{' are flat JSON objects with a "type" field.
//   - Frames starting with the event code prefix and '[' are array-style:
//     the kind and a single payload object inside a JSON array.
//
// Parameters:
//   - data: Raw text frame from the transport
//
// Returns:
//   - Envelope: Parsed envelope with normalised kind
//   - error: ErrMalformedEnvelope if the frame fits neither framing
func ParseEnvelope(data []byte) (Envelope, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return Envelope{}, fmt.Errorf("%w: empty frame", ErrMalformedEnvelope)
	}

	if trimmed[0] == '{' {
		return parseFlat([]byte(trimmed))
	}
	if rest, ok := strings.CutPrefix(trimmed, eventCodePrefix); ok && strings.HasPrefix(rest, "[") {
		return parseArray([]byte(rest))
	}

	return Envelope{}, fmt.Errorf("%w: unrecognised framing in %q", ErrMalformedEnvelope, truncate(trimmed))
}

// parseFlat parses a flat envelope. The whole object doubles as the
// payload; handlers ignore the extra "type" field.
func parseFlat(data []byte) (Envelope, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	if head.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type field", ErrMalformedEnvelope)
	}

	return Envelope{
		Kind:    normaliseKind(head.Type),
		Payload: json.RawMessage(data),
	}, nil
}

// parseArray parses an array-style envelope: ["kind", {payload}].
// The payload element is optional; some acknowledgment kinds omit it.
func parseArray(data []byte) (Envelope, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	if len(parts) == 0 {
		return Envelope{}, fmt.Errorf("%w: empty event array", ErrMalformedEnvelope)
	}

	var kind string
	if err := json.Unmarshal(parts[0], &kind); err != nil {
		return Envelope{}, fmt.Errorf("%w: event name: %w", ErrMalformedEnvelope, err)
	}
	if kind == "" {
		return Envelope{}, fmt.Errorf("%w: empty event name", ErrMalformedEnvelope)
	}

	env := Envelope{Kind: normaliseKind(kind)}
	if len(parts) > 1 {
		env.Payload = parts[1]
	}
	return env, nil
}

// EncodeEnvelope encodes a kind and payload into one outbound text
// frame using the given framing.
//
// Parameters:
//   - framing: FramingFlat or FramingSocketIO
//   - kind: Message kind
//   - payload: Payload value, marshalled to JSON; may be nil
//
// Returns:
//   - []byte: Encoded frame ready to write to the transport
//   - error: If the payload cannot be marshalled
func EncodeEnvelope(framing, kind string, payload any) ([]byte, error) {
	switch framing {
	case FramingSocketIO:
		return encodeArray(kind, payload)
	case FramingFlat:
		return encodeFlat(kind, payload)
	default:
		return nil, fmt.Errorf("unknown framing %q", framing)
	}
}

func encodeFlat(kind string, payload any) ([]byte, error) {
	fields := make(map[string]any)
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("payload must be a JSON object: %w", err)
		}
	}
	fields["type"] = kind

	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

func encodeArray(kind string, payload any) ([]byte, error) {
	parts := []any{kind}
	if payload != nil {
		parts = append(parts, payload)
	}

	data, err := json.Marshal(parts)
	if err != nil {
		return nil, fmt.Errorf("marshal event array: %w", err)
	}
	return append([]byte(eventCodePrefix), data...), nil
}

// truncate limits frame excerpts in error messages.
func truncate(s string) string {
	const max = 48
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
