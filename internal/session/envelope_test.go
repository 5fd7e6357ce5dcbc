package session

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseEnvelopeFlat(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"type":"unlock","lockerId":"L1"}`))
	if err != nil {
		t.Fatalf("ParseEnvelope() error: %v", err)
	}
	if env.Kind != KindUnlock {
		t.Errorf("Kind = %q, want %q", env.Kind, KindUnlock)
	}

	var cmd CommandMessage
	if err := json.Unmarshal(env.Payload, &cmd); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if cmd.LockerID != "L1" {
		t.Errorf("LockerID = %q, want L1", cmd.LockerID)
	}
}

func TestParseEnvelopeArray(t *testing.T) {
	env, err := ParseEnvelope([]byte(`42["module-configured",{"targetIdentity":"AABB","moduleId":"M1","lockerIds":["L1","L2"]}]`))
	if err != nil {
		t.Fatalf("ParseEnvelope() error: %v", err)
	}
	if env.Kind != KindModuleConfigured {
		t.Errorf("Kind = %q, want %q", env.Kind, KindModuleConfigured)
	}

	var push ConfigPush
	if err := json.Unmarshal(env.Payload, &push); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if push.TargetIdentity != "AABB" || push.ModuleID != "M1" || len(push.LockerIDs) != 2 {
		t.Errorf("push = %+v, want AABB/M1/2 lockers", push)
	}
}

func TestParseEnvelopeArrayWithoutPayload(t *testing.T) {
	env, err := ParseEnvelope([]byte(`42["registered"]`))
	if err != nil {
		t.Fatalf("ParseEnvelope() error: %v", err)
	}
	if env.Kind != KindRegistered {
		t.Errorf("Kind = %q, want %q", env.Kind, KindRegistered)
	}
	if env.Payload != nil {
		t.Errorf("Payload = %q, want nil", env.Payload)
	}
}

func TestParseEnvelopeNormalisesKind(t *testing.T) {
	tests := []struct {
		frame string
		want  string
	}{
		{frame: `{"type":"module_configured","moduleId":"M1"}`, want: KindModuleConfigured},
		{frame: `{"type":"module-configured","moduleId":"M1"}`, want: KindModuleConfigured},
		{frame: `42["configuration_success",{}]`, want: KindConfigSuccess},
	}

	for _, tt := range tests {
		env, err := ParseEnvelope([]byte(tt.frame))
		if err != nil {
			t.Fatalf("ParseEnvelope(%q) error: %v", tt.frame, err)
		}
		if env.Kind != tt.want {
			t.Errorf("ParseEnvelope(%q).Kind = %q, want %q", tt.frame, env.Kind, tt.want)
		}
	}
}

func TestParseEnvelopeMalformed(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{name: "empty", frame: ""},
		{name: "whitespace", frame: "  \n "},
		{name: "not json", frame: "garbage"},
		{name: "flat without type", frame: `{"lockerId":"L1"}`},
		{name: "flat bad json", frame: `{"type":`},
		{name: "array empty", frame: `42[]`},
		{name: "array bad json", frame: `42["unlock",`},
		{name: "array kind not a string", frame: `42[7,{}]`},
		{name: "unknown prefix", frame: `99["unlock",{}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseEnvelope([]byte(tt.frame)); !errors.Is(err, ErrMalformedEnvelope) {
				t.Errorf("ParseEnvelope(%q) error = %v, want ErrMalformedEnvelope", tt.frame, err)
			}
		})
	}
}

func TestEncodeEnvelopeFlat(t *testing.T) {
	data, err := EncodeEnvelope(FramingFlat, KindRegister, RegisterRequest{ModuleID: "M1"})
	if err != nil {
		t.Fatalf("EncodeEnvelope() error: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if fields["type"] != KindRegister {
		t.Errorf("type field = %v, want %q", fields["type"], KindRegister)
	}
	if fields["moduleId"] != "M1" {
		t.Errorf("moduleId field = %v, want M1", fields["moduleId"])
	}
}

func TestEncodeEnvelopeSocketIO(t *testing.T) {
	data, err := EncodeEnvelope(FramingSocketIO, KindPing, PingMessage{ModuleID: "M1"})
	if err != nil {
		t.Fatalf("EncodeEnvelope() error: %v", err)
	}
	if !strings.HasPrefix(string(data), eventCodePrefix+"[") {
		t.Fatalf("frame %q missing event code prefix", data)
	}

	env, err := ParseEnvelope(data)
	if err != nil {
		t.Fatalf("ParseEnvelope(encoded) error: %v", err)
	}
	if env.Kind != KindPing {
		t.Errorf("round-trip kind = %q, want %q", env.Kind, KindPing)
	}

	var ping PingMessage
	if err := json.Unmarshal(env.Payload, &ping); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if ping.ModuleID != "M1" {
		t.Errorf("round-trip moduleId = %q, want M1", ping.ModuleID)
	}
}

func TestEncodeEnvelopeRoundTripBothFramings(t *testing.T) {
	update := StatusUpdate{ModuleID: "M1", LockerID: "L2", Status: "locked"}

	for _, framing := range []string{FramingFlat, FramingSocketIO} {
		data, err := EncodeEnvelope(framing, KindLockerStatus, update)
		if err != nil {
			t.Fatalf("EncodeEnvelope(%s) error: %v", framing, err)
		}

		env, err := ParseEnvelope(data)
		if err != nil {
			t.Fatalf("ParseEnvelope(%s) error: %v", framing, err)
		}
		if env.Kind != KindLockerStatus {
			t.Errorf("framing %s: kind = %q, want %q", framing, env.Kind, KindLockerStatus)
		}

		var got StatusUpdate
		if err := json.Unmarshal(env.Payload, &got); err != nil {
			t.Fatalf("framing %s: unmarshal payload: %v", framing, err)
		}
		if got.ModuleID != update.ModuleID || got.LockerID != update.LockerID || got.Status != update.Status {
			t.Errorf("framing %s: payload = %+v, want %+v", framing, got, update)
		}
	}
}

func TestEncodeEnvelopeUnknownFraming(t *testing.T) {
	if _, err := EncodeEnvelope("telegraph", KindPing, nil); err == nil {
		t.Error("EncodeEnvelope(unknown framing) should fail")
	}
}
