package snapcast

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soundmesh/soundmesh-core/internal/routing"
)

// Defaults for the control connection.
const (
	defaultConnectTimeout    = 10 * time.Second
	defaultRequestTimeout    = 10 * time.Second
	defaultReconnectInterval = 5 * time.Second
	maxReconnectInterval     = 2 * time.Minute

	// maxLineSize bounds a single JSON-RPC line. Server.GetStatus for a
	// large installation runs to tens of kilobytes.
	maxLineSize = 1 << 20

	// notificationQueueSize bounds buffered server notifications before
	// the dispatcher; overflow drops the oldest-agnostic way (newest).
	notificationQueueSize = 64
)

// Config holds Snapcast control connection configuration.
type Config struct {
	// Address is the control port address, e.g. "localhost:1705".
	Address string

	// ConnectTimeout is the maximum time to wait for connection.
	// Default: 10 seconds.
	ConnectTimeout time.Duration

	// RequestTimeout caps a single RPC round trip. Default: 10 seconds.
	RequestTimeout time.Duration

	// ReconnectInterval is the initial delay between reconnection
	// attempts. Default: 5 seconds.
	ReconnectInterval time.Duration
}

// Logger is the optional logging interface for the client.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Notification is an unsolicited event pushed by the server.
type Notification struct {
	// Method is the event name, e.g. "Client.OnConnect".
	Method string

	// Params is the raw event payload.
	Params json.RawMessage
}

// Ensure Client satisfies the routing contract.
var _ routing.Controller = (*Client)(nil)

// Client is a JSON-RPC 2.0 client for the Snapcast control port.
//
// Requests from multiple goroutines are multiplexed over one TCP
// connection and correlated by request ID. On connection loss all
// in-flight requests fail with routing.ErrNotConnected and a background
// goroutine reconnects with exponential backoff.
type Client struct {
	cfg Config

	connMu    sync.RWMutex
	conn      net.Conn
	connected bool

	pendingMu sync.Mutex
	pending   map[uint64]chan rpcEnvelope
	nextID    atomic.Uint64

	notifications  chan Notification
	onNotification atomic.Pointer[func(Notification)]

	done     chan struct{}
	doneOnce sync.Once
	wg       sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex
}

// Dial connects to the Snapcast control port and starts the read loop.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}

	if ctx == nil {
		ctx = context.Background()
	}
	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", routing.ErrNotConnected, cfg.Address, err)
	}

	c := &Client{
		cfg:           cfg,
		conn:          conn,
		connected:     true,
		pending:       make(map[uint64]chan rpcEnvelope),
		notifications: make(chan Notification, notificationQueueSize),
		done:          make(chan struct{}),
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.dispatchNotifications()

	return c, nil
}

// SetOnNotification registers a callback for server-pushed events.
// The callback runs on a dedicated goroutine, one event at a time.
func (c *Client) SetOnNotification(fn func(Notification)) {
	c.onNotification.Store(&fn)
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// IsConnected reports whether the control connection is up.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// Close shuts down the connection and background goroutines.
// Safe to call multiple times.
func (c *Client) Close() error {
	c.doneOnce.Do(func() { close(c.done) })

	c.connMu.Lock()
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.failPending()
	c.wg.Wait()
	return nil
}

// Status fetches the server's current topology.
func (c *Client) Status(ctx context.Context) (*routing.ServerStatus, error) {
	result, err := c.call(ctx, methodServerGetStatus, nil)
	if err != nil {
		return nil, err
	}
	return parseStatus(result)
}

// SetGroupClients replaces a group's membership.
func (c *Client) SetGroupClients(ctx context.Context, groupID string, clientIDs []string) error {
	if clientIDs == nil {
		clientIDs = []string{}
	}
	_, err := c.call(ctx, methodGroupSetClients, groupSetClientsParams{ID: groupID, Clients: clientIDs})
	return err
}

// MoveClientToGroup moves one client into the given group, keeping the
// group's existing members. Snapcast has no single-client move primitive;
// the membership list is re-fetched and rewritten, and the server drops
// the client from its previous group as a side effect.
func (c *Client) MoveClientToGroup(ctx context.Context, clientID, groupID string) error {
	status, err := c.Status(ctx)
	if err != nil {
		return err
	}

	group, ok := status.GroupByID(groupID)
	if !ok {
		return fmt.Errorf("%w: group %q not found", routing.ErrServerFault, groupID)
	}
	if group.HasClient(clientID) {
		return nil
	}

	return c.SetGroupClients(ctx, groupID, append(group.ClientIDs(), clientID))
}

// CreateGroup makes a new group containing exactly the given clients.
//
// Snapcast cannot create groups directly: removing a client from its
// group makes the server re-home it into a fresh group of its own. The
// first client is orphaned that way (or its current group is reused if
// the client is already alone), then the remaining clients are pulled in.
func (c *Client) CreateGroup(ctx context.Context, clientIDs []string) (string, error) {
	if len(clientIDs) == 0 {
		return "", fmt.Errorf("%w: a group needs at least one client", routing.ErrServerFault)
	}

	status, err := c.Status(ctx)
	if err != nil {
		return "", err
	}

	seed := clientIDs[0]
	current, ok := status.GroupOfClient(seed)
	if !ok {
		return "", fmt.Errorf("%w: client %q not found", routing.ErrServerFault, seed)
	}

	groupID := current.ID
	if len(current.Clients) > 1 {
		// Evict the seed client; the server creates a fresh group for it.
		remaining := make([]string, 0, len(current.Clients)-1)
		for _, id := range current.ClientIDs() {
			if id != seed {
				remaining = append(remaining, id)
			}
		}
		if err := c.SetGroupClients(ctx, current.ID, remaining); err != nil {
			return "", err
		}

		status, err = c.Status(ctx)
		if err != nil {
			return "", err
		}
		fresh, ok := status.GroupOfClient(seed)
		if !ok {
			return "", fmt.Errorf("%w: client %q lost after regroup", routing.ErrServerFault, seed)
		}
		groupID = fresh.ID
	}

	if len(clientIDs) > 1 {
		if err := c.SetGroupClients(ctx, groupID, clientIDs); err != nil {
			return "", err
		}
	}

	return groupID, nil
}

// SetGroupStream binds a group to a stream.
func (c *Client) SetGroupStream(ctx context.Context, groupID, streamID string) error {
	_, err := c.call(ctx, methodGroupSetStream, groupSetStreamParams{ID: groupID, StreamID: streamID})
	return err
}

// SetGroupName renames a group.
func (c *Client) SetGroupName(ctx context.Context, groupID, name string) error {
	_, err := c.call(ctx, methodGroupSetName, groupSetNameParams{ID: groupID, Name: name})
	return err
}

// SetClientName renames a client.
func (c *Client) SetClientName(ctx context.Context, clientID, name string) error {
	_, err := c.call(ctx, methodClientSetName, clientSetNameParams{ID: clientID, Name: name})
	return err
}

// SetClientVolume sets a client's volume percentage and mute flag.
func (c *Client) SetClientVolume(ctx context.Context, clientID string, percent int, muted bool) error {
	params := clientSetVolumeParams{
		ID:     clientID,
		Volume: volumeParams{Muted: muted, Percent: percent},
	}
	_, err := c.call(ctx, methodClientSetVolume, params)
	return err
}

// SetClientLatency sets a client's latency compensation.
func (c *Client) SetClientLatency(ctx context.Context, clientID string, latencyMs int) error {
	_, err := c.call(ctx, methodClientSetLatency, clientSetLatencyParams{ID: clientID, Latency: latencyMs})
	return err
}

// call performs one JSON-RPC round trip.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.connMu.RLock()
	conn := c.conn
	connected := c.connected
	c.connMu.RUnlock()

	if !connected || conn == nil {
		return nil, routing.ErrNotConnected
	}

	id := c.nextID.Add(1)
	respCh := make(chan rpcEnvelope, 1)

	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	line, err := json.Marshal(rpcRequest{
		ID:      id,
		JSONRPC: jsonRPCVersion,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}
	line = append(line, '\n')

	deadline := time.Now().Add(c.cfg.RequestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := conn.Write(line); err != nil {
		return nil, fmt.Errorf("%w: write %s: %w", routing.ErrNotConnected, method, err)
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case env, ok := <-respCh:
		if !ok {
			return nil, routing.ErrNotConnected
		}
		if env.Error != nil {
			return nil, fmt.Errorf("%w: %s: %s (code %d)",
				routing.ErrServerFault, method, env.Error.Message, env.Error.Code)
		}
		return env.Result, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", method, ctx.Err())
	case <-timer.C:
		return nil, fmt.Errorf("%s: request timed out", method)
	case <-c.done:
		return nil, routing.ErrNotConnected
	}
}

// readLoop reads server lines, routing responses to waiters and
// notifications to the dispatcher. On failure it reconnects.
func (c *Client) readLoop() {
	defer c.wg.Done()

	for {
		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()

		if conn != nil {
			c.readLines(conn)
		}

		if c.isClosed() {
			return
		}

		c.connMu.Lock()
		c.connected = false
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.connMu.Unlock()
		c.failPending()

		if !c.reconnect() {
			return
		}
	}
}

// readLines consumes the connection until it errors.
func (c *Client) readLines(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var env rpcEnvelope
		if err := json.Unmarshal(line, &env); err != nil {
			c.logError("malformed server line", err)
			continue
		}

		if env.ID != nil {
			c.pendingMu.Lock()
			ch, ok := c.pending[*env.ID]
			if ok {
				delete(c.pending, *env.ID)
			}
			c.pendingMu.Unlock()
			if ok {
				ch <- env
			}
			continue
		}

		if env.Method == "" {
			continue
		}
		select {
		case c.notifications <- Notification{Method: env.Method, Params: env.Params}:
		default:
			c.logError("notification queue full, dropping event", nil)
		}
	}

	if err := scanner.Err(); err != nil && !c.isClosed() {
		c.logError("control connection read failed", err)
	}
}

// dispatchNotifications delivers queued server events to the callback.
func (c *Client) dispatchNotifications() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		case n := <-c.notifications:
			if fn := c.onNotification.Load(); fn != nil && *fn != nil {
				(*fn)(n)
			}
		}
	}
}

// failPending fails every in-flight request.
func (c *Client) failPending() {
	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}

// reconnect re-establishes the control connection with exponential
// backoff. Returns false if shutdown was signalled.
func (c *Client) reconnect() bool {
	backoff := c.cfg.ReconnectInterval

	for attempt := 1; ; attempt++ {
		select {
		case <-c.done:
			return false
		default:
		}

		c.logInfo("reconnecting to audio-routing server",
			"address", c.cfg.Address, "attempt", attempt, "backoff", backoff.String())

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
		var dialer net.Dialer
		conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Address)
		cancel()

		if err == nil {
			c.connMu.Lock()
			c.conn = conn
			c.connected = true
			c.connMu.Unlock()
			c.logInfo("audio-routing server connection restored")
			return true
		}

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
	}
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
		if err != nil {
			logger.Error(msg, "error", err)
		} else {
			logger.Error(msg)
		}
	}
}
