package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ferndale-systems/locknode/internal/identity"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// State of the backend session.
type State string

// Session states.
const (
	// StateDisconnected means no transport connection exists.
	StateDisconnected State = "disconnected"

	// StateConnecting means a connection attempt is in progress.
	StateConnecting State = "connecting"

	// StateConnected means the transport is up but no module identity
	// has been claimed (unconfigured device broadcasting availability).
	StateConnected State = "connected"

	// StateRegistered means the transport is up and the assigned module
	// identity has been claimed.
	StateRegistered State = "registered"
)

// Default intervals and timeouts for the backend session.
const (
	// defaultPingInterval is the heartbeat period while registered.
	defaultPingInterval = 60 * time.Second

	// defaultAvailableInterval is the availability broadcast period
	// while unconfigured.
	defaultAvailableInterval = 15 * time.Second

	// defaultReconnectMinInterval is the floor between connect attempts.
	defaultReconnectMinInterval = 5 * time.Second

	// defaultConnectTimeout bounds the transport handshake.
	defaultConnectTimeout = 10 * time.Second

	// defaultWriteTimeout bounds individual frame writes.
	defaultWriteTimeout = 5 * time.Second

	// inboundQueueSize buffers frames between the read pump and dispatch.
	inboundQueueSize = 16
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// noopLogger discards all log output. Used when no logger is set.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Conn is the transport connection seam.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens transport connections.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Conn, error)
}

// wsDialer dials websocket connections with gorilla/websocket.
type wsDialer struct {
	handshakeTimeout time.Duration
}

func (d wsDialer) DialContext(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: d.handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("dial %s: %w (http %s)", url, err, resp.Status)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return conn, nil
}

// Config holds backend session configuration.
type Config struct {
	// URL is the backend websocket endpoint (ws:// or wss://).
	URL string

	// Framing selects the outbound wire framing, FramingFlat or
	// FramingSocketIO. Inbound frames are always auto-detected.
	Framing string

	// DeviceInfo is the human-readable device description advertised in
	// availability broadcasts.
	DeviceInfo string

	// Version is the firmware version advertised in broadcasts.
	Version string

	// Capabilities is the maximum locker count advertised in broadcasts.
	Capabilities int

	// PingInterval is the heartbeat period while registered.
	// Default: 60 seconds.
	PingInterval time.Duration

	// AvailableInterval is the availability broadcast period while
	// unconfigured. Default: 15 seconds.
	AvailableInterval time.Duration

	// ReconnectMinInterval is the minimum spacing between connect
	// attempts. Default: 5 seconds.
	ReconnectMinInterval time.Duration

	// ConnectTimeout bounds the transport handshake. Default: 10 seconds.
	ConnectTimeout time.Duration

	// WriteTimeout bounds individual frame writes. Default: 5 seconds.
	WriteTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Framing == "" {
		c.Framing = FramingFlat
	}
	if c.PingInterval == 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.AvailableInterval == 0 {
		c.AvailableInterval = defaultAvailableInterval
	}
	if c.ReconnectMinInterval == 0 {
		c.ReconnectMinInterval = defaultReconnectMinInterval
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
}

// Stats holds operational statistics for the session.
type Stats struct {
	MessagesTx      uint64
	MessagesRx      uint64
	ErrorsTotal     uint64
	ReconnectsTotal uint64
	LastContact     time.Time
	State           State
}

// Client owns the transport connection to the backend.
//
// It frames and parses protocol envelopes, drives reconnection with a
// minimum-interval floor, emits heartbeats while registered and
// availability broadcasts while unconfigured, and dispatches inbound
// messages to the relay and handshake callbacks.
//
// State machine: Disconnected, Connecting, Connected, Registered. A
// transport close from any state returns to Disconnected; there is no
// terminal state, the client keeps working back towards Registered for
// its whole lifetime.
//
// Thread Safety: all methods are safe for concurrent use. Callbacks are
// invoked from the session goroutine; they must not block for long and
// must hand real work to their own machinery.
type Client struct {
	cfg      Config
	identity *identity.Identity
	dialer   Dialer

	// Connection state
	mu    sync.RWMutex
	state State
	conn  Conn

	// writeMu keeps frame writes whole on the shared connection.
	writeMu sync.Mutex

	// Dispatch callbacks
	onCommand    func(kind, lockerID string)
	onConfigure  func(ConfigPush)
	onNFCResult  func(NFCValidationResult)
	onConnect    func(registered bool)
	onDisconnect func()
	callbackMu   sync.RWMutex

	// Shutdown coordination
	done *closeOnce
	wg   sync.WaitGroup

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	// Statistics
	messagesTx      atomic.Uint64
	messagesRx      atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastContact     atomic.Int64 // Unix timestamp
	lastAttempt     atomic.Int64 // Unix nanoseconds, reconnect floor
}

// New creates a session client for the given backend and device identity.
//
// Parameters:
//   - cfg: Session configuration
//   - id: Device identity (hardware id and, if configured, module id)
//
// Returns:
//   - *Client: Client in StateDisconnected; call Start to connect
func New(cfg Config, id *identity.Identity) *Client {
	cfg.applyDefaults()
	return newClient(cfg, id, wsDialer{handshakeTimeout: cfg.ConnectTimeout})
}

// newClient wires an explicit dialer. Used directly by tests.
func newClient(cfg Config, id *identity.Identity, dialer Dialer) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:      cfg,
		identity: id,
		dialer:   dialer,
		state:    StateDisconnected,
		done:     newCloseOnce(),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	if logger != nil {
		c.logger = logger
	}
	c.loggerMu.Unlock()
}

// SetOnCommand sets the callback for inbound lock/unlock commands.
// kind is KindLock or KindUnlock.
func (c *Client) SetOnCommand(callback func(kind, lockerID string)) {
	c.callbackMu.Lock()
	c.onCommand = callback
	c.callbackMu.Unlock()
}

// SetOnConfigure sets the callback for inbound configuration pushes.
func (c *Client) SetOnConfigure(callback func(ConfigPush)) {
	c.callbackMu.Lock()
	c.onConfigure = callback
	c.callbackMu.Unlock()
}

// SetOnNFCResult sets the callback for NFC validation results.
func (c *Client) SetOnNFCResult(callback func(NFCValidationResult)) {
	c.callbackMu.Lock()
	c.onNFCResult = callback
	c.callbackMu.Unlock()
}

// SetOnConnect sets the callback invoked when a session is established.
// registered reports whether the module identity was claimed.
func (c *Client) SetOnConnect(callback func(registered bool)) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets the callback invoked when the transport closes.
func (c *Client) SetOnDisconnect(callback func()) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// Start launches the session loop. The client connects, reconnects and
// dispatches in the background until Close.
func (c *Client) Start() {
	c.wg.Add(1)
	go c.run()
}

// run is the session loop: connect, serve, reconnect.
func (c *Client) run() {
	defer c.wg.Done()

	first := true
	for {
		if c.isClosed() {
			return
		}

		if !c.waitReconnectFloor() {
			return
		}

		c.setState(StateConnecting)

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
		conn, err := c.dialer.DialContext(ctx, c.cfg.URL)
		cancel()

		if err != nil {
			c.errorsTotal.Add(1)
			c.setState(StateDisconnected)
			c.logWarn("connect failed", "url", c.cfg.URL, "error", err)
			continue
		}

		if !first {
			c.reconnectsTotal.Add(1)
		}
		first = false

		c.serve(conn)

		c.setState(StateDisconnected)
		c.fireDisconnect()

		if c.isClosed() {
			return
		}
		c.logInfo("session lost, reconnecting")
	}
}

// waitReconnectFloor enforces the minimum spacing between connection
// attempts. Returns false if shutdown was signalled while waiting.
func (c *Client) waitReconnectFloor() bool {
	last := c.lastAttempt.Load()
	if last != 0 {
		elapsed := time.Since(time.Unix(0, last))
		if wait := c.cfg.ReconnectMinInterval - elapsed; wait > 0 {
			select {
			case <-c.done.Done():
				return false
			case <-time.After(wait):
			}
		}
	}
	c.lastAttempt.Store(time.Now().UnixNano())
	return true
}

// serve runs one established session until the connection dies or the
// client is closed.
func (c *Client) serve(conn Conn) {
	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()

	c.lastContact.Store(time.Now().Unix())

	registered := false
	if moduleID := c.identity.ModuleID(); moduleID != "" {
		if err := c.sendRegister(moduleID); err != nil {
			c.logWarn("register failed", "error", err)
		} else {
			// Optimistic: registered on send, the ack only confirms.
			c.setState(StateRegistered)
			registered = true
		}
	} else {
		c.sendAvailableBroadcast()
	}

	c.fireConnect(registered)
	c.logInfo("session established", "registered", registered)

	frames := make(chan []byte, inboundQueueSize)
	readDone := make(chan struct{})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(readDone)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case frames <- data:
			case <-c.done.Done():
				return
			}
		}
	}()

	pingTicker := time.NewTicker(c.cfg.PingInterval)
	defer pingTicker.Stop()
	availTicker := time.NewTicker(c.cfg.AvailableInterval)
	defer availTicker.Stop()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	for {
		select {
		case <-c.done.Done():
			return
		case <-readDone:
			return
		case data := <-frames:
			c.dispatch(data)
		case <-pingTicker.C:
			if c.State() == StateRegistered {
				if err := c.sendPing(); err != nil {
					c.logWarn("ping failed", "error", err)
				}
			}
		case <-availTicker.C:
			if c.identity.ModuleID() == "" {
				c.sendAvailableBroadcast()
			}
		}
	}
}

// dispatch parses one inbound frame and routes it by kind.
// Unknown kinds are logged and dropped; the session is never torn down
// over a bad frame.
func (c *Client) dispatch(data []byte) {
	env, err := ParseEnvelope(data)
	if err != nil {
		c.errorsTotal.Add(1)
		c.logWarn("dropping malformed frame", "error", err)
		return
	}

	c.messagesRx.Add(1)
	c.lastContact.Store(time.Now().Unix())

	switch env.Kind {
	case KindRegistered:
		c.logInfo("module registration acknowledged")
		c.setState(StateRegistered)

	case KindPong:
		// Heartbeat bookkeeping only; lastContact already refreshed.

	case KindLock, KindUnlock:
		var cmd CommandMessage
		if err := json.Unmarshal(env.Payload, &cmd); err != nil || cmd.LockerID == "" {
			c.errorsTotal.Add(1)
			c.logWarn("dropping malformed command", "kind", env.Kind, "error", err)
			return
		}
		c.callbackMu.RLock()
		callback := c.onCommand
		c.callbackMu.RUnlock()
		if callback != nil {
			callback(env.Kind, cmd.LockerID)
		}

	case KindModuleConfigured:
		var push ConfigPush
		if err := json.Unmarshal(env.Payload, &push); err != nil {
			c.errorsTotal.Add(1)
			c.logWarn("dropping malformed configuration push", "error", err)
			return
		}
		c.callbackMu.RLock()
		callback := c.onConfigure
		c.callbackMu.RUnlock()
		if callback != nil {
			callback(push)
		}

	case KindNFCResult:
		var res NFCValidationResult
		if err := json.Unmarshal(env.Payload, &res); err != nil {
			c.errorsTotal.Add(1)
			c.logWarn("dropping malformed validation result", "error", err)
			return
		}
		c.callbackMu.RLock()
		callback := c.onNFCResult
		c.callbackMu.RUnlock()
		if callback != nil {
			callback(res)
		}

	default:
		c.logDebug("dropping unknown message kind", "kind", env.Kind)
	}
}

// Emit encodes and sends one message using the configured framing.
//
// Parameters:
//   - kind: Message kind
//   - payload: Payload value, marshalled to JSON; may be nil
//
// Returns:
//   - error: ErrNotConnected if the transport is down, or a write error
func (c *Client) Emit(kind string, payload any) error {
	data, err := EncodeEnvelope(c.cfg.Framing, kind, payload)
	if err != nil {
		return err
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.errorsTotal.Add(1)
		return fmt.Errorf("write %s: %w", kind, err)
	}

	c.messagesTx.Add(1)
	return nil
}

// SendStatus emits one locker status update.
func (c *Client) SendStatus(update StatusUpdate) error {
	return c.Emit(KindLockerStatus, update)
}

// ValidateNFC asks the backend to validate a scanned NFC code.
// The answer arrives asynchronously through the NFC result callback.
func (c *Client) ValidateNFC(code string) error {
	return c.Emit(KindValidateNFC, NFCValidationRequest{
		NFCCode:  code,
		ModuleID: c.identity.ModuleID(),
	})
}

func (c *Client) sendRegister(moduleID string) error {
	return c.Emit(KindRegister, RegisterRequest{ModuleID: moduleID})
}

func (c *Client) sendPing() error {
	return c.Emit(KindPing, PingMessage{ModuleID: c.identity.ModuleID()})
}

func (c *Client) sendAvailableBroadcast() {
	err := c.Emit(KindModuleAvailable, AvailableBroadcast{
		HardwareID:   c.identity.HardwareID(),
		DeviceInfo:   c.cfg.DeviceInfo,
		Version:      c.cfg.Version,
		Capabilities: c.cfg.Capabilities,
	})
	if err != nil {
		c.logWarn("availability broadcast failed", "error", err)
		return
	}
	c.logDebug("availability broadcast sent", "hardware_id", c.identity.HardwareID())
}

// State returns the current session state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// LastContact returns when the last inbound message arrived.
// Exposed for observability; silence is not treated as fatal, the
// transport's own close signal is authoritative.
func (c *Client) LastContact() time.Time {
	return time.Unix(c.lastContact.Load(), 0)
}

// Stats returns current operational statistics.
func (c *Client) Stats() Stats {
	return Stats{
		MessagesTx:      c.messagesTx.Load(),
		MessagesRx:      c.messagesRx.Load(),
		ErrorsTotal:     c.errorsTotal.Load(),
		ReconnectsTotal: c.reconnectsTotal.Load(),
		LastContact:     c.LastContact(),
		State:           c.State(),
	}
}

func (c *Client) fireConnect(registered bool) {
	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(registered)
	}
}

func (c *Client) fireDisconnect() {
	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// isClosed returns true if the client has been closed.
func (c *Client) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

// Close shuts the session down. Safe to call multiple times.
func (c *Client) Close() error {
	c.done.Close()

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()

	c.wg.Wait()

	c.logInfo("session closed")
	return nil
}

func (c *Client) logDebug(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()
	logger.Debug(msg, keysAndValues...)
}

func (c *Client) logInfo(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()
	logger.Info(msg, keysAndValues...)
}

func (c *Client) logWarn(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()
	logger.Warn(msg, keysAndValues...)
}
