package actuation

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ferndale-systems/locknode/internal/locker"
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

// Default timeouts and intervals for the secondary controller link.
const (
	// defaultAckTimeout is the maximum wait for a command acknowledgment.
	defaultAckTimeout = 1 * time.Second

	// defaultConnectTimeout is the maximum time to wait for link setup.
	defaultConnectTimeout = 10 * time.Second

	// defaultStatusInterval is the period between status polls.
	defaultStatusInterval = 2 * time.Second

	// defaultLivenessTimeout is how long the link may stay silent before
	// it is considered unresponsive.
	defaultLivenessTimeout = 10 * time.Second

	// defaultReconnectInterval is the initial delay between link
	// reconnection attempts.
	defaultReconnectInterval = 5 * time.Second

	// maxReconnectInterval is the maximum delay between reconnection attempts.
	maxReconnectInterval = 2 * time.Minute

	// linkWriteTimeout bounds frame writes on deadline-capable links.
	linkWriteTimeout = 5 * time.Second

	// statusQueueSize is the buffer size for the status callback queue.
	statusQueueSize = 32
)

// LinkOpener opens the byte-oriented link to the secondary controller.
type LinkOpener func(ctx context.Context) (io.ReadWriteCloser, error)

// NewLinkOpener builds a LinkOpener from a link URL.
//
// Supported formats:
//   - "tcp://localhost:7600" (TCP, typically a serial-over-network bridge)
//   - "file:///dev/ttyUSB0" (character device)
//
// Parameters:
//   - linkURL: Link connection URL
//
// Returns:
//   - LinkOpener: Opener for the described link
//   - error: If the URL is malformed or the scheme is unsupported
func NewLinkOpener(linkURL string) (LinkOpener, error) {
	u, err := url.Parse(linkURL)
	if err != nil {
		return nil, fmt.Errorf("invalid link URL: %w", err)
	}

	switch u.Scheme {
	case "tcp":
		host := u.Host
		if host == "" {
			return nil, fmt.Errorf("link URL %q missing host", linkURL)
		}
		return func(ctx context.Context) (io.ReadWriteCloser, error) {
			var dialer net.Dialer
			conn, err := dialer.DialContext(ctx, "tcp", host)
			if err != nil {
				return nil, fmt.Errorf("dial %s: %w", host, err)
			}
			return conn, nil
		}, nil
	case "file":
		path := u.Path
		if path == "" {
			return nil, fmt.Errorf("link URL %q missing path", linkURL)
		}
		return func(_ context.Context) (io.ReadWriteCloser, error) {
			f, err := os.OpenFile(path, os.O_RDWR, 0)
			if err != nil {
				return nil, fmt.Errorf("open %s: %w", path, err)
			}
			return f, nil
		}, nil
	default:
		return nil, fmt.Errorf("unsupported link scheme %q (use tcp or file)", u.Scheme)
	}
}

// RelayedConfig holds secondary controller link configuration.
type RelayedConfig struct {
	// Link is the link connection URL ("tcp://host:port" or "file:///dev/...").
	Link string

	// Lockers is the number of configured lockers (indexes 1..Lockers).
	Lockers int

	// AckTimeout is the maximum wait for a command acknowledgment.
	// Default: 1 second.
	AckTimeout time.Duration

	// StatusInterval is the period between status polls. Zero uses the
	// default; negative disables polling.
	StatusInterval time.Duration

	// LivenessTimeout is how long the link may stay silent before
	// Responsive reports false. Default: 10 seconds.
	LivenessTimeout time.Duration

	// ConnectTimeout is the maximum time to wait for link setup.
	// Default: 10 seconds.
	ConnectTimeout time.Duration

	// ReconnectInterval is the initial delay between reconnection attempts.
	// Default: 5 seconds.
	ReconnectInterval time.Duration
}

func (c *RelayedConfig) applyDefaults() {
	if c.AckTimeout == 0 {
		c.AckTimeout = defaultAckTimeout
	}
	if c.StatusInterval == 0 {
		c.StatusInterval = defaultStatusInterval
	}
	if c.LivenessTimeout == 0 {
		c.LivenessTimeout = defaultLivenessTimeout
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.ReconnectInterval == 0 {
		c.ReconnectInterval = defaultReconnectInterval
	}
}

// RelayedStats holds operational statistics for the link.
type RelayedStats struct {
	FramesTx        uint64
	FramesRx        uint64
	AcksTimedOut    uint64
	StatusDropped   uint64 // Status frames dropped due to full callback queue
	ErrorsTotal     uint64
	ReconnectsTotal uint64
	LastFrame       time.Time
	Connected       bool
	Responsive      bool // Connected and heard from within LivenessTimeout
}

// Relayed drives lock hardware behind a secondary controller.
//
// Commands cross a byte-oriented link as fixed 3-byte frames. Each lock
// or unlock command blocks, with a bounded timeout, until the controller
// acknowledges it; command/acknowledgment turnarounds are serialised so
// at most one is in flight on the link. The controller also pushes
// unsolicited status frames, which are delivered to the status callback
// outside the synchronous wait path.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - The status callback is invoked from a dedicated goroutine.
//
// Auto-Reconnection:
//   - When the link is lost, the channel reconnects with exponential
//     backoff starting at ReconnectInterval, capped at 2 minutes.
//   - Reconnection stops only when Close is called.
type Relayed struct {
	cfg  RelayedConfig
	open LinkOpener

	// Link state
	linkMu    sync.RWMutex
	link      io.ReadWriteCloser
	connected bool

	// writeMu keeps frame writes whole on the shared link.
	writeMu sync.Mutex

	// cmdMu serialises command/acknowledgment turnarounds.
	cmdMu sync.Mutex

	// ackWaiter receives the solicited response for the in-flight command.
	ackMu     sync.Mutex
	ackWaiter chan Frame

	// Status handler callback
	onStatus    func(index int, state locker.State)
	callbackMu  sync.RWMutex
	statusQueue chan Frame

	// Shutdown coordination
	done *closeOnce
	wg   sync.WaitGroup

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	// Statistics
	framesTx        atomic.Uint64
	framesRx        atomic.Uint64
	acksTimedOut    atomic.Uint64
	statusDropped   atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastFrame       atomic.Int64 // Unix timestamp
}

// OpenRelayed opens the link to the secondary controller and starts the
// receive and status-poll loops.
//
// Parameters:
//   - ctx: Context for cancellation (used for initial link setup)
//   - cfg: Link configuration
//
// Returns:
//   - *Relayed: Channel ready for use
//   - error: If the link URL is invalid or the link cannot be opened
func OpenRelayed(ctx context.Context, cfg RelayedConfig) (*Relayed, error) {
	open, err := NewLinkOpener(cfg.Link)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLinkDown, err)
	}
	return openRelayed(ctx, open, cfg)
}

// openRelayed opens the channel over an injected LinkOpener.
func openRelayed(ctx context.Context, open LinkOpener, cfg RelayedConfig) (*Relayed, error) {
	cfg.applyDefaults()

	if ctx == nil {
		ctx = context.Background()
	}
	openCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	link, err := open(openCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLinkDown, err)
	}

	r := &Relayed{
		cfg:         cfg,
		open:        open,
		link:        link,
		connected:   true,
		done:        newCloseOnce(),
		statusQueue: make(chan Frame, statusQueueSize),
		logger:      noopLogger{},
	}
	r.lastFrame.Store(time.Now().Unix())

	r.wg.Add(1)
	go r.receiveLoop()

	r.wg.Add(1)
	go r.statusWorker()

	if cfg.StatusInterval > 0 {
		r.wg.Add(1)
		go r.pollLoop()
	}

	return r, nil
}

// SetLogger sets the logger for this channel.
func (r *Relayed) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	if logger != nil {
		r.logger = logger
	}
	r.loggerMu.Unlock()
}

// SetOnStatus sets the callback for unsolicited status frames.
//
// The callback is invoked from a dedicated goroutine, never from the
// synchronous acknowledgment wait path. Panics are recovered and logged.
//
// Parameters:
//   - callback: Function called with the 1-based locker index and the
//     reported position
func (r *Relayed) SetOnStatus(callback func(index int, state locker.State)) {
	r.callbackMu.Lock()
	r.onStatus = callback
	r.callbackMu.Unlock()
}

// SetState commands the locker to the target position and waits for the
// controller's acknowledgment.
//
// At most one command/acknowledgment turnaround runs on the link at a
// time; concurrent callers queue behind cmdMu. On timeout the command is
// abandoned without retry, so the caller cannot double-actuate; the
// physical position is then unknown until the next status frame.
//
// Parameters:
//   - ctx: Context for cancellation while waiting for the acknowledgment
//   - index: 1-based locker index
//   - target: locker.StateLocked or locker.StateUnlocked
//
// Returns:
//   - locker.State: The applied state, equal to target on success;
//     locker.StateUnknown on timeout or fault
//   - error: ErrInvalidIndex, ErrInvalidTarget, ErrLinkDown, ErrAckTimeout,
//     ErrControllerFault, or ErrLinkClosed
func (r *Relayed) SetState(ctx context.Context, index int, target locker.State) (locker.State, error) {
	if index < 1 || index > r.cfg.Lockers {
		return locker.StateUnknown, fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}

	var command byte
	switch target {
	case locker.StateLocked:
		command = CommandLock
	case locker.StateUnlocked:
		command = CommandUnlock
	default:
		return locker.StateUnknown, fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}

	frame, err := NewCommandFrame(command, index)
	if err != nil {
		return locker.StateUnknown, err
	}

	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()

	waiter := make(chan Frame, 1)
	r.ackMu.Lock()
	r.ackWaiter = waiter
	r.ackMu.Unlock()

	defer func() {
		r.ackMu.Lock()
		r.ackWaiter = nil
		r.ackMu.Unlock()
	}()

	if err := r.writeFrame(frame); err != nil {
		return locker.StateUnknown, err
	}

	timer := time.NewTimer(r.cfg.AckTimeout)
	defer timer.Stop()

	for {
		select {
		case resp := <-waiter:
			if resp.Index != index {
				// Stale response from an earlier abandoned command.
				r.logWarn("discarding response for unexpected locker",
					"want", index, "got", resp.Index)
				continue
			}
			if resp.IsError() {
				r.errorsTotal.Add(1)
				return locker.StateUnknown, fmt.Errorf("%w: locker %d", ErrControllerFault, index)
			}
			return target, nil
		case <-timer.C:
			r.acksTimedOut.Add(1)
			return locker.StateUnknown, fmt.Errorf("%w: locker %d after %s",
				ErrAckTimeout, index, r.cfg.AckTimeout)
		case <-ctx.Done():
			return locker.StateUnknown, fmt.Errorf("%w: %w", ErrAckTimeout, ctx.Err())
		case <-r.done.Done():
			return locker.StateUnknown, ErrLinkClosed
		}
	}
}

// NotifyOnline tells the secondary controller whether the backend
// session is up. Fire and forget; no acknowledgment is awaited.
//
// Parameters:
//   - online: True when the backend session is established
//
// Returns:
//   - error: If the frame cannot be written
func (r *Relayed) NotifyOnline(online bool) error {
	command := CommandOffline
	if online {
		command = CommandOnline
	}
	frame, err := NewCommandFrame(command, IndexAll)
	if err != nil {
		return err
	}
	return r.writeFrame(frame)
}

// RequestStatus asks the controller to report every locker's position.
// Responses arrive as unsolicited status frames via the status callback.
func (r *Relayed) RequestStatus() error {
	frame, err := NewCommandFrame(CommandStatus, IndexAll)
	if err != nil {
		return err
	}
	return r.writeFrame(frame)
}

// writeFrame writes a single frame to the link.
func (r *Relayed) writeFrame(f Frame) error {
	r.linkMu.RLock()
	link := r.link
	connected := r.connected
	r.linkMu.RUnlock()

	if link == nil || !connected {
		return ErrLinkDown
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if conn, ok := link.(net.Conn); ok {
		if err := conn.SetWriteDeadline(time.Now().Add(linkWriteTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}

	if _, err := link.Write(f.Encode()); err != nil {
		r.errorsTotal.Add(1)
		return fmt.Errorf("write frame: %w", err)
	}

	r.framesTx.Add(1)
	return nil
}

// receiveLoop continuously reads frames from the link.
// On link loss it reconnects with exponential backoff.
func (r *Relayed) receiveLoop() {
	defer r.wg.Done()

	buf := make([]byte, FrameSize)

	for {
		select {
		case <-r.done.Done():
			return
		default:
		}

		r.linkMu.RLock()
		link := r.link
		r.linkMu.RUnlock()

		if link == nil {
			if !r.reconnect() {
				return
			}
			continue
		}

		if _, err := io.ReadFull(link, buf); err != nil {
			if r.isClosed() {
				return
			}
			r.handleDisconnect(err)
			if !r.reconnect() {
				return
			}
			continue
		}

		frame, err := ParseFrame(buf)
		if err != nil {
			// Byte-stream alignment is lost once a frame is malformed.
			// Drop the link and resynchronise on a fresh connection.
			r.logError("malformed frame, resetting link", err)
			r.errorsTotal.Add(1)
			r.handleDisconnect(err)
			if !r.reconnect() {
				return
			}
			continue
		}

		r.framesRx.Add(1)
		r.lastFrame.Store(time.Now().Unix())
		r.routeFrame(frame)
	}
}

// routeFrame delivers an inbound frame to the right consumer: solicited
// acknowledgment and error frames go to the in-flight command's waiter,
// status frames to the callback queue.
func (r *Relayed) routeFrame(f Frame) {
	if f.IsAck() || f.IsError() {
		r.ackMu.Lock()
		waiter := r.ackWaiter
		r.ackMu.Unlock()

		if waiter == nil {
			r.logWarn("unsolicited response dropped", "frame", f.String())
			return
		}
		select {
		case waiter <- f:
		default:
			r.logWarn("response dropped, waiter already satisfied", "frame", f.String())
		}
		return
	}

	if f.IsStatus() {
		select {
		case r.statusQueue <- f:
		default:
			r.logError("status queue full, dropping frame", nil)
			r.statusDropped.Add(1)
			r.errorsTotal.Add(1)
		}
	}
}

// statusWorker delivers status frames to the callback.
func (r *Relayed) statusWorker() {
	defer r.wg.Done()

	for {
		select {
		case <-r.done.Done():
			return
		case f := <-r.statusQueue:
			r.callbackMu.RLock()
			callback := r.onStatus
			r.callbackMu.RUnlock()

			if callback == nil {
				continue
			}

			state := locker.StateLocked
			if f.Response == ResponseUnlocked {
				state = locker.StateUnlocked
			}

			func() {
				defer func() {
					if rec := recover(); rec != nil {
						r.logError("status callback panic", fmt.Errorf("%v", rec))
					}
				}()
				callback(f.Index, state)
			}()
		}
	}
}

// pollLoop periodically requests a full status report.
func (r *Relayed) pollLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done.Done():
			return
		case <-ticker.C:
			if err := r.RequestStatus(); err != nil {
				r.logWarn("status poll failed", "error", err)
			}
		}
	}
}

// handleDisconnect tears down the current link and fails the in-flight
// command, if any.
func (r *Relayed) handleDisconnect(err error) {
	r.linkMu.Lock()
	if r.link != nil {
		r.link.Close()
		r.link = nil
	}
	wasConnected := r.connected
	r.connected = false
	r.linkMu.Unlock()

	if wasConnected {
		r.logWarn("link lost, will attempt reconnection", "error", err)
	}
}

// reconnect re-establishes the link with exponential backoff.
// Returns false if shutdown was signalled.
func (r *Relayed) reconnect() bool {
	backoff := r.cfg.ReconnectInterval

	for {
		select {
		case <-r.done.Done():
			return false
		case <-time.After(backoff):
		}

		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.ConnectTimeout)
		link, err := r.open(ctx)
		cancel()

		if err != nil {
			r.logWarn("link reconnect failed", "error", err, "backoff", backoff.String())
			r.errorsTotal.Add(1)

			backoff = time.Duration(float64(backoff) * 1.5)
			if backoff > maxReconnectInterval {
				backoff = maxReconnectInterval
			}
			continue
		}

		r.linkMu.Lock()
		r.link = link
		r.connected = true
		r.linkMu.Unlock()

		r.reconnectsTotal.Add(1)
		r.lastFrame.Store(time.Now().Unix())
		r.logInfo("link reconnected", "total_reconnects", r.reconnectsTotal.Load())
		return true
	}
}

// isClosed returns true if the channel has been closed.
func (r *Relayed) isClosed() bool {
	select {
	case <-r.done.Done():
		return true
	default:
		return false
	}
}

// IsConnected returns true if the link is currently established.
func (r *Relayed) IsConnected() bool {
	r.linkMu.RLock()
	defer r.linkMu.RUnlock()
	return r.connected
}

// Responsive returns true if the link is established and a frame has
// arrived within the liveness timeout.
func (r *Relayed) Responsive() bool {
	if !r.IsConnected() {
		return false
	}
	last := time.Unix(r.lastFrame.Load(), 0)
	return time.Since(last) <= r.cfg.LivenessTimeout
}

// Stats returns current operational statistics.
func (r *Relayed) Stats() RelayedStats {
	return RelayedStats{
		FramesTx:        r.framesTx.Load(),
		FramesRx:        r.framesRx.Load(),
		AcksTimedOut:    r.acksTimedOut.Load(),
		StatusDropped:   r.statusDropped.Load(),
		ErrorsTotal:     r.errorsTotal.Load(),
		ReconnectsTotal: r.reconnectsTotal.Load(),
		LastFrame:       time.Unix(r.lastFrame.Load(), 0),
		Connected:       r.IsConnected(),
		Responsive:      r.Responsive(),
	}
}

// Close gracefully closes the link.
//
// Safe to call multiple times. Any in-flight command fails with
// ErrLinkClosed.
func (r *Relayed) Close() error {
	r.done.Close()

	r.linkMu.Lock()
	if r.link != nil {
		r.link.Close()
	}
	r.connected = false
	r.linkMu.Unlock()

	r.wg.Wait()

	r.logInfo("link closed")
	return nil
}

func (r *Relayed) logInfo(msg string, keysAndValues ...any) {
	r.loggerMu.RLock()
	logger := r.logger
	r.loggerMu.RUnlock()
	logger.Info(msg, keysAndValues...)
}

func (r *Relayed) logWarn(msg string, keysAndValues ...any) {
	r.loggerMu.RLock()
	logger := r.logger
	r.loggerMu.RUnlock()
	logger.Warn(msg, keysAndValues...)
}

func (r *Relayed) logError(msg string, err error) {
	r.loggerMu.RLock()
	logger := r.logger
	r.loggerMu.RUnlock()
	logger.Error(msg, "error", err)
}
