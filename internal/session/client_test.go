package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ferndale-systems/locknode/internal/identity"
)

// fakeConn is an in-memory transport connection driven by the test.
type fakeConn struct {
	inbound  chan []byte
	outbound chan []byte
	closed   chan struct{}
	once     sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound:  make(chan []byte, 16),
		outbound: make(chan []byte, 64),
		closed:   make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.inbound:
		return 1, data, nil
	case <-f.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("connection closed")
	case f.outbound <- data:
		return nil
	}
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

// feed delivers an inbound frame to the client.
func (f *fakeConn) feed(t *testing.T, frame string) {
	t.Helper()
	select {
	case f.inbound <- []byte(frame):
	case <-time.After(time.Second):
		t.Errorf("timed out feeding frame %q", frame)
	}
}

// sent waits for the next outbound frame and parses it.
func (f *fakeConn) sent(t *testing.T) Envelope {
	t.Helper()
	select {
	case data := <-f.outbound:
		env, err := ParseEnvelope(data)
		if err != nil {
			t.Fatalf("client sent unparseable frame %q: %v", data, err)
		}
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound frame")
		return Envelope{}
	}
}

// fakeDialer hands out prepared connections, then fails.
type fakeDialer struct {
	mu       sync.Mutex
	conns    []*fakeConn
	attempts []time.Time
}

func (d *fakeDialer) DialContext(context.Context, string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.attempts = append(d.attempts, time.Now())
	if len(d.conns) == 0 {
		return nil, errors.New("backend unreachable")
	}
	conn := d.conns[0]
	d.conns = d.conns[1:]
	return conn, nil
}

func (d *fakeDialer) attemptTimes() []time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Time(nil), d.attempts...)
}

func testConfig() Config {
	return Config{
		URL:                  "ws://backend.test/ws",
		Framing:              FramingFlat,
		DeviceInfo:           "LockNode Test",
		Version:              "1.2.0",
		Capabilities:         3,
		PingInterval:         time.Hour,
		AvailableInterval:    time.Hour,
		ReconnectMinInterval: 10 * time.Millisecond,
	}
}

func startClient(t *testing.T, cfg Config, id *identity.Identity, dialer Dialer) *Client {
	t.Helper()
	c := newClient(cfg, id, dialer)
	c.Start()
	t.Cleanup(func() { c.Close() })
	return c
}

func waitForState(t *testing.T, c *Client, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %q, want %q", c.State(), want)
}

func TestClientRegistersWhenConfigured(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	id := identity.New("AABBCCDDEEFF", "M1")

	c := startClient(t, testConfig(), id, dialer)

	env := conn.sent(t)
	if env.Kind != KindRegister {
		t.Fatalf("first frame kind = %q, want %q", env.Kind, KindRegister)
	}
	var req RegisterRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		t.Fatalf("unmarshal register: %v", err)
	}
	if req.ModuleID != "M1" {
		t.Errorf("register moduleId = %q, want M1", req.ModuleID)
	}

	waitForState(t, c, StateRegistered)
}

func TestClientBroadcastsWhenUnconfigured(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	id := identity.New("AABBCCDDEEFF", "")

	cfg := testConfig()
	cfg.AvailableInterval = 20 * time.Millisecond
	c := startClient(t, cfg, id, dialer)

	// One broadcast on connect, then one per interval.
	for i := 0; i < 2; i++ {
		env := conn.sent(t)
		if env.Kind != KindModuleAvailable {
			t.Fatalf("frame kind = %q, want %q", env.Kind, KindModuleAvailable)
		}
		var b AvailableBroadcast
		if err := json.Unmarshal(env.Payload, &b); err != nil {
			t.Fatalf("unmarshal broadcast: %v", err)
		}
		if b.HardwareID != "AABBCCDDEEFF" || b.Capabilities != 3 {
			t.Errorf("broadcast = %+v, want hardware AABBCCDDEEFF capabilities 3", b)
		}
	}

	waitForState(t, c, StateConnected)
}

func TestClientHeartbeatWhileRegistered(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	id := identity.New("AABBCCDDEEFF", "M1")

	cfg := testConfig()
	cfg.PingInterval = 20 * time.Millisecond
	startClient(t, cfg, id, dialer)

	if env := conn.sent(t); env.Kind != KindRegister {
		t.Fatalf("first frame = %q, want register", env.Kind)
	}

	env := conn.sent(t)
	if env.Kind != KindPing {
		t.Fatalf("frame kind = %q, want %q", env.Kind, KindPing)
	}
	var ping PingMessage
	if err := json.Unmarshal(env.Payload, &ping); err != nil {
		t.Fatalf("unmarshal ping: %v", err)
	}
	if ping.ModuleID != "M1" {
		t.Errorf("ping moduleId = %q, want M1", ping.ModuleID)
	}
}

func TestClientDispatchesCommands(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	id := identity.New("AABBCCDDEEFF", "M1")

	c := startClient(t, testConfig(), id, dialer)

	type command struct{ kind, lockerID string }
	commands := make(chan command, 4)
	c.SetOnCommand(func(kind, lockerID string) {
		commands <- command{kind: kind, lockerID: lockerID}
	})

	conn.sent(t) // register

	// Both framings must dispatch identically.
	conn.feed(t, `{"type":"unlock","lockerId":"L1"}`)
	conn.feed(t, `42["lock",{"lockerId":"L2"}]`)

	want := []command{{kind: KindUnlock, lockerID: "L1"}, {kind: KindLock, lockerID: "L2"}}
	for _, w := range want {
		select {
		case got := <-commands:
			if got != w {
				t.Errorf("command = %+v, want %+v", got, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for command %+v", w)
		}
	}
}

func TestClientDispatchesConfigurationPush(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	id := identity.New("AABBCCDDEEFF", "")

	c := startClient(t, testConfig(), id, dialer)

	pushes := make(chan ConfigPush, 1)
	c.SetOnConfigure(func(p ConfigPush) { pushes <- p })

	conn.sent(t) // availability broadcast

	conn.feed(t, `42["module-configured",{"targetIdentity":"AABBCCDDEEFF","moduleId":"M7","lockerIds":["L1","L2"]}]`)

	select {
	case push := <-pushes:
		if push.ModuleID != "M7" || len(push.LockerIDs) != 2 {
			t.Errorf("push = %+v, want M7 with 2 lockers", push)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for configuration push")
	}
}

func TestClientDropsUnknownAndMalformedFrames(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	id := identity.New("AABBCCDDEEFF", "M1")

	c := startClient(t, testConfig(), id, dialer)

	commands := make(chan string, 1)
	c.SetOnCommand(func(_, lockerID string) { commands <- lockerID })

	conn.sent(t) // register

	conn.feed(t, `{"type":"firmware-rollout","url":"http://x"}`) // unknown kind
	conn.feed(t, `garbage`)                                      // malformed
	conn.feed(t, `{"type":"unlock"}`)                            // command without lockerId
	conn.feed(t, `{"type":"unlock","lockerId":"L1"}`)            // valid

	select {
	case lockerID := <-commands:
		if lockerID != "L1" {
			t.Errorf("dispatched locker = %q, want L1", lockerID)
		}
	case <-time.After(time.Second):
		t.Fatal("session did not survive bad frames")
	}
}

func TestClientReconnectFloor(t *testing.T) {
	dialer := &fakeDialer{} // every dial fails
	id := identity.New("AABBCCDDEEFF", "M1")

	cfg := testConfig()
	cfg.ReconnectMinInterval = 50 * time.Millisecond
	startClient(t, cfg, id, dialer)

	deadline := time.Now().Add(2 * time.Second)
	for len(dialer.attemptTimes()) < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	attempts := dialer.attemptTimes()
	if len(attempts) < 3 {
		t.Fatalf("got %d connect attempts, want at least 3", len(attempts))
	}
	for i := 1; i < len(attempts); i++ {
		if gap := attempts[i].Sub(attempts[i-1]); gap < cfg.ReconnectMinInterval {
			t.Errorf("attempts %d and %d only %s apart, floor is %s",
				i-1, i, gap, cfg.ReconnectMinInterval)
		}
	}
}

func TestClientReconnectsAfterDisconnect(t *testing.T) {
	first := newFakeConn()
	second := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{first, second}}
	id := identity.New("AABBCCDDEEFF", "M1")

	c := startClient(t, testConfig(), id, dialer)

	disconnects := make(chan struct{}, 2)
	c.SetOnDisconnect(func() { disconnects <- struct{}{} })

	first.sent(t) // register on first connection
	first.Close()

	select {
	case <-disconnects:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect callback not invoked")
	}

	// The client re-registers on the replacement connection.
	env := second.sent(t)
	if env.Kind != KindRegister {
		t.Errorf("frame on new connection = %q, want register", env.Kind)
	}
	waitForState(t, c, StateRegistered)

	if got := c.Stats().ReconnectsTotal; got != 1 {
		t.Errorf("Stats().ReconnectsTotal = %d, want 1", got)
	}
}

func TestClientSendStatusAndValidateNFC(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	id := identity.New("AABBCCDDEEFF", "M1")

	c := startClient(t, testConfig(), id, dialer)
	conn.sent(t) // register

	occupied := true
	update := StatusUpdate{
		ModuleID:  "M1",
		LockerID:  "L1",
		Status:    "locked",
		Occupied:  &occupied,
		Timestamp: time.Now().UTC(),
	}
	if err := c.SendStatus(update); err != nil {
		t.Fatalf("SendStatus() error: %v", err)
	}

	env := conn.sent(t)
	if env.Kind != KindLockerStatus {
		t.Fatalf("frame kind = %q, want %q", env.Kind, KindLockerStatus)
	}
	var got StatusUpdate
	if err := json.Unmarshal(env.Payload, &got); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if got.LockerID != "L1" || got.Status != "locked" || got.Occupied == nil || !*got.Occupied {
		t.Errorf("status = %+v, want L1/locked/occupied", got)
	}

	if err := c.ValidateNFC("CARD-42"); err != nil {
		t.Fatalf("ValidateNFC() error: %v", err)
	}
	env = conn.sent(t)
	if env.Kind != KindValidateNFC {
		t.Fatalf("frame kind = %q, want %q", env.Kind, KindValidateNFC)
	}
	var req NFCValidationRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		t.Fatalf("unmarshal validation request: %v", err)
	}
	if req.NFCCode != "CARD-42" || req.ModuleID != "M1" {
		t.Errorf("validation request = %+v, want CARD-42/M1", req)
	}
}

func TestClientDispatchesNFCResult(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	id := identity.New("AABBCCDDEEFF", "M1")

	c := startClient(t, testConfig(), id, dialer)

	results := make(chan NFCValidationResult, 1)
	c.SetOnNFCResult(func(res NFCValidationResult) { results <- res })

	conn.sent(t) // register
	conn.feed(t, `42["nfc-validation-result",{"nfcCode":"CARD-42","valid":true,"lockerId":"L1"}]`)

	select {
	case res := <-results:
		if !res.Valid || res.LockerID != "L1" {
			t.Errorf("result = %+v, want valid for L1", res)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for validation result")
	}
}

func TestClientEmitWhileDisconnected(t *testing.T) {
	dialer := &fakeDialer{}
	id := identity.New("AABBCCDDEEFF", "M1")

	cfg := testConfig()
	cfg.ReconnectMinInterval = time.Hour
	c := newClient(cfg, id, dialer)
	t.Cleanup(func() { c.Close() })

	if err := c.Emit(KindPing, PingMessage{ModuleID: "M1"}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Emit() while disconnected error = %v, want ErrNotConnected", err)
	}
}
