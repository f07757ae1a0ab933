package knx

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"
)

// Default timeouts and intervals for knxd communication.
const (
	defaultConnectTimeout    = 10 * time.Second
	defaultWriteTimeout      = 5 * time.Second
	defaultReadTimeout       = 30 * time.Second
	defaultReconnectInterval = 5 * time.Second
	maxReconnectInterval     = 2 * time.Minute

	// drainBufferSize bounds a single inbound knxd frame. Group telegrams
	// are at most a few dozen bytes; anything larger indicates desync.
	drainBufferSize = 256
)

// Config holds knxd connection settings. Zero timeouts fall back to the
// package defaults.
type Config struct {
	// Connection locates the daemon, either "unix:///run/knxd" or
	// "tcp://host:6720".
	Connection string

	// ConnectTimeout bounds the dial plus handshake.
	ConnectTimeout time.Duration

	// WriteTimeout bounds one telegram write.
	WriteTimeout time.Duration

	// ReconnectInterval is the first backoff step after a lost connection.
	ReconnectInterval time.Duration
}

// Stats holds operational statistics for the bus connection.
type Stats struct {
	TelegramsTx     uint64
	ErrorsTotal     uint64
	ReconnectsTotal uint64
	LastActivity    time.Time
	Connected       bool
}

// Logger is the optional logging interface for the client.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// BusWriter is the write side of the KNX bus, as consumed by status
// publishers. Implementations must be safe for concurrent use.
type BusWriter interface {
	WriteGroup(ctx context.Context, ga GroupAddress, data []byte) error
	IsConnected() bool
	Close() error
}

// Ensure Client implements BusWriter.
var _ BusWriter = (*Client)(nil)

// Client is a write-side connection to the knxd daemon.
//
// The group socket is opened bidirectionally because knxd echoes bus
// traffic back on it; a background goroutine drains inbound frames to
// keep the socket from stalling, but their contents are discarded.
//
// On connection loss the drain goroutine reconnects with exponential
// backoff until Close is called. Writes during an outage fail fast
// with ErrNotConnected.
type Client struct {
	cfg Config

	connMu    sync.RWMutex
	conn      net.Conn
	connected bool

	done     chan struct{}
	doneOnce sync.Once
	wg       sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex

	telegramsTx     atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastActivity    atomic.Int64 // Unix timestamp
}

// Connect establishes a connection to the knxd daemon and opens group
// communication mode. The returned client is ready for WriteGroup calls.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}

	network, address, err := parseConnectionURL(cfg.Connection)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, network, address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial failed: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		cfg:  cfg,
		conn: conn,
		done: make(chan struct{}),
	}
	c.lastActivity.Store(time.Now().Unix())

	if err := c.openGroupCon(dialCtx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: handshake failed: %w", ErrConnectionFailed, err)
	}

	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.wg.Add(1)
	go c.drainLoop()

	return c, nil
}

// parseConnectionURL parses a knxd connection URL into network and address.
func parseConnectionURL(connURL string) (network, address string, err error) {
	u, err := url.Parse(connURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "unix":
		return "unix", u.Path, nil
	case "tcp":
		host := u.Host
		if host == "" {
			host = "localhost:6720"
		}
		return "tcp", host, nil
	default:
		return "", "", fmt.Errorf("unsupported scheme %q (use unix or tcp)", u.Scheme)
	}
}

// openGroupCon performs the EIB_OPEN_GROUPCON handshake on conn.
//
// Payload is reserved(1) + write_only(1) + reserved(1). write_only stays
// 0x00: knxd group sockets echo bus traffic regardless, and the drain
// loop needs the frames to arrive intact to stay in sync.
func (c *Client) openGroupCon(ctx context.Context, conn net.Conn) error {
	msg := encodeMessage(eibOpenGroupCon, []byte{0x00, 0x00, 0x00})

	writeDeadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(writeDeadline) {
		writeDeadline = d
	}
	if err := conn.SetWriteDeadline(writeDeadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := conn.Write(msg); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	readDeadline := time.Now().Add(defaultReadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(readDeadline) {
		readDeadline = d
	}
	if err := conn.SetReadDeadline(readDeadline); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}

	buf := make([]byte, drainBufferSize)
	msgType, _, err := readFrame(conn, buf)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if msgType != eibOpenGroupCon {
		return fmt.Errorf("unexpected response type: 0x%04X", msgType)
	}

	return nil
}

// readFrame reads one complete knxd frame from conn into buf.
func readFrame(conn net.Conn, buf []byte) (uint16, []byte, error) {
	if _, err := io.ReadFull(conn, buf[:2]); err != nil {
		return 0, nil, fmt.Errorf("read size: %w", err)
	}

	size := binary.BigEndian.Uint16(buf[:2])
	if size < 2 {
		return 0, nil, fmt.Errorf("%w: declared size %d below minimum", ErrInvalidMessage, size)
	}
	total := 2 + int(size)
	if total > len(buf) {
		// Cannot skip an unknown number of bytes safely; caller must
		// drop the connection to re-sync.
		return 0, nil, fmt.Errorf("%w: frame of %d bytes exceeds buffer", ErrInvalidMessage, total)
	}

	if _, err := io.ReadFull(conn, buf[2:total]); err != nil {
		return 0, nil, fmt.Errorf("read body: %w", err)
	}

	return parseMessage(buf[:total])
}

// drainLoop reads and discards inbound frames, reconnecting on failure.
func (c *Client) drainLoop() {
	defer c.wg.Done()

	buf := make([]byte, drainBufferSize)

	for {
		select {
		case <-c.done:
			return
		default:
		}

		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()
		if conn == nil {
			if !c.reconnect() {
				return
			}
			continue
		}

		if err := conn.SetReadDeadline(time.Now().Add(defaultReadTimeout)); err != nil {
			c.logError("set read deadline failed", err)
		}

		_, _, err := readFrame(conn, buf)
		if err == nil {
			c.lastActivity.Store(time.Now().Unix())
			continue
		}

		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			continue // idle bus
		}

		if c.isClosed() {
			return
		}

		c.logError("bus read failed", err)
		c.errorsTotal.Add(1)
		c.markDisconnected()

		if !c.reconnect() {
			return
		}
	}
}

// reconnect re-establishes the knxd connection with exponential backoff.
// Returns false if shutdown was signalled.
func (c *Client) reconnect() bool {
	network, address, err := parseConnectionURL(c.cfg.Connection)
	if err != nil {
		c.logError("reconnect: invalid connection URL", err)
		return false
	}

	backoff := c.cfg.ReconnectInterval

	for attempt := 1; ; attempt++ {
		select {
		case <-c.done:
			return false
		default:
		}

		c.logInfo("attempting reconnection", "attempt", attempt, "backoff", backoff.String())

		c.closeConn()

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
		var dialer net.Dialer
		conn, err := dialer.DialContext(ctx, network, address)
		if err == nil {
			err = c.openGroupCon(ctx, conn)
		}
		cancel()

		if err != nil {
			if conn != nil {
				conn.Close()
			}
			c.errorsTotal.Add(1)
			c.logError("reconnect failed", err)

			select {
			case <-c.done:
				return false
			case <-time.After(backoff):
			}

			backoff = time.Duration(float64(backoff) * 1.5)
			if backoff > maxReconnectInterval {
				backoff = maxReconnectInterval
			}
			continue
		}

		c.connMu.Lock()
		c.conn = conn
		c.connected = true
		c.connMu.Unlock()

		c.reconnectsTotal.Add(1)
		c.lastActivity.Store(time.Now().Unix())
		c.logInfo("reconnection successful", "total_reconnects", c.reconnectsTotal.Load())
		return true
	}
}

// WriteGroup sends a group write telegram to the bus.
func (c *Client) WriteGroup(ctx context.Context, ga GroupAddress, data []byte) error {
	if ga.IsZero() {
		return fmt.Errorf("%w: zero group address", ErrInvalidGroupAddress)
	}

	c.connMu.RLock()
	conn := c.conn
	connected := c.connected
	c.connMu.RUnlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrTelegramFailed, ctx.Err())
	default:
	}

	msg := encodeMessage(eibGroupPacket, NewWriteTelegram(ga, data).Encode())

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: set deadline: %w", ErrTelegramFailed, err)
	}

	if _, err := conn.Write(msg); err != nil {
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w: write: %w", ErrTelegramFailed, err)
	}

	c.telegramsTx.Add(1)
	c.lastActivity.Store(time.Now().Unix())
	return nil
}

// markDisconnected flags the connection as lost.
func (c *Client) markDisconnected() {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()
}

// closeConn closes and clears the current connection, if any.
func (c *Client) closeConn() {
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
}

// isClosed returns true once Close has been called.
func (c *Client) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// IsConnected returns true if the client is connected to knxd.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// StatsSnapshot returns current operational statistics.
func (c *Client) StatsSnapshot() Stats {
	return Stats{
		TelegramsTx:     c.telegramsTx.Load(),
		ErrorsTotal:     c.errorsTotal.Load(),
		ReconnectsTotal: c.reconnectsTotal.Load(),
		LastActivity:    time.Unix(c.lastActivity.Load(), 0),
		Connected:       c.IsConnected(),
	}
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// Close shuts down the drain loop and closes the connection.
// Safe to call multiple times.
func (c *Client) Close() error {
	c.doneOnce.Do(func() { close(c.done) })

	c.markDisconnected()
	c.closeConn()
	c.wg.Wait()

	c.logInfo("knxd connection closed")
	return nil
}

func (c *Client) logInfo(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()
	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (c *Client) logError(msg string, err error) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()
	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
