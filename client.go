package j1939

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// maxSubscriptions is size of fixed subscription table. Table is fixed size
// so subscribing can not allocate without bound on long running clients.
const maxSubscriptions = 16

// HandlerFunc is called with decoded message for subscribed PGN. Message is
// owned by the dispatcher, handler must copy fields it wants to keep.
type HandlerFunc func(message Message)

type subscription struct {
	pgn     uint32
	handler HandlerFunc
	active  bool
}

// Config is configuration for Client
type Config struct {
	// InterfaceName is CAN interface client is attached to (for example:
	// can0). Informational, the transport given to NewClient is already
	// bound to an interface.
	InterfaceName string
	// SourceAddress is this client's address in the bus (0x00-0xFD)
	SourceAddress uint8
	// Bitrate of the bus. Informational, bitrate is set when the interface
	// is brought up.
	Bitrate int
	// Debug enables logging of sent and dispatched frames
	Debug bool
	// Logger defaults to slog.Default() when not set
	Logger *slog.Logger
}

// Client connects J1939 codec to a frame transport and routes decoded
// messages to subscribed handlers.
type Client struct {
	config    Config
	transport RawFrameReadWriter
	logger    *slog.Logger

	mu            sync.Mutex
	connected     bool
	subscriptions [maxSubscriptions]subscription
}

// NewClient creates new J1939 client that reads and writes frames through
// given transport. Client does no I/O until Connect is called.
func NewClient(config Config, transport RawFrameReadWriter) (*Client, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: transport is required", ErrInvalidParameter)
	}
	if config.SourceAddress > 0xFD {
		return nil, fmt.Errorf("%w: source address must be 0x00-0xFD, got 0x%02X", ErrInvalidParameter, config.SourceAddress)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config:    config,
		transport: transport,
		logger:    logger,
	}, nil
}

// Connect initializes the transport and marks client connected.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return ErrAlreadyConnected
	}
	if err := c.transport.Initialize(); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	c.connected = true

	if c.config.Debug {
		c.logger.Debug("connected",
			"interface", c.config.InterfaceName,
			"source", c.config.SourceAddress,
		)
	}
	return nil
}

// Disconnect closes the transport and clears all subscriptions. Disconnecting
// an already disconnected client is not an error.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}
	err := c.transport.Close()
	c.connected = false
	c.subscriptions = [maxSubscriptions]subscription{}

	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SourceAddress returns address this client uses as frame source.
func (c *Client) SourceAddress() uint8 {
	return c.config.SourceAddress
}

// OnPGN subscribes handler to be called for every received message with given
// PGN. Subscribing same PGN multiple times is allowed but only the earliest
// active subscription is dispatched to (see DispatchFrame). Returns
// ErrOutOfCapacity when subscription table is full.
func (c *Client) OnPGN(pgn uint32, handler HandlerFunc) error {
	if handler == nil {
		return fmt.Errorf("%w: handler is required", ErrInvalidParameter)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.subscriptions {
		if c.subscriptions[i].active {
			continue
		}
		c.subscriptions[i] = subscription{pgn: pgn, handler: handler, active: true}
		return nil
	}
	return ErrOutOfCapacity
}

// OffPGN removes earliest active subscription for given PGN. Unsubscribing a
// PGN that has no subscription is not an error.
func (c *Client) OffPGN(pgn uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.subscriptions {
		if c.subscriptions[i].active && c.subscriptions[i].pgn == pgn {
			c.subscriptions[i] = subscription{}
			return
		}
	}
}

// DispatchFrame decodes given frame and invokes handler of the first
// subscription matching the message PGN. At most one handler is invoked per
// frame even when multiple subscriptions share the PGN. Handler runs on the
// caller's goroutine after the subscription table lock is released, so
// handlers may call OnPGN/OffPGN. A frame with no matching subscription is
// dropped silently.
func (c *Client) DispatchFrame(frame RawFrame) {
	message := DecodeFrame(frame)

	c.mu.Lock()
	var handler HandlerFunc
	for i := range c.subscriptions {
		if c.subscriptions[i].active && c.subscriptions[i].pgn == message.Header.PGN {
			handler = c.subscriptions[i].handler
			break
		}
	}
	c.mu.Unlock()

	if handler == nil {
		return
	}
	if c.config.Debug {
		c.logger.Debug("dispatching message",
			"pgn", message.Header.PGN,
			"pgn_name", message.PGNName,
			"source", message.Header.Source,
		)
	}
	handler(message)
}

// Poll reads frames from the transport and dispatches them until context is
// done or transport runs out of data (io.EOF). Returns how many frames were
// dispatched.
func (c *Client) Poll(ctx context.Context) (int, error) {
	if !c.Connected() {
		return 0, ErrNotConnected
	}

	processed := 0
	for {
		frame, err := c.transport.ReadRawFrame(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
				errors.Is(err, io.EOF) || errors.Is(err, ErrTimeout) {
				return processed, nil
			}
			return processed, fmt.Errorf("%w: %v", ErrTransport, err)
		}
		c.DispatchFrame(frame)
		processed++
	}
}

// RequestPGN sends Request PGN (59904) asking destination to send given PGN.
// Response arrives through subscription handler for that PGN.
func (c *Client) RequestPGN(pgn uint32, destination uint8) error {
	return c.send(EncodeRequest(pgn, c.config.SourceAddress, destination))
}

// SendEngineControl sends Engine Control Command PGN (61184) to the bus.
func (c *Client) SendEngineControl(cmd EngineControlCommand) error {
	return c.send(EncodeEngineControl(cmd, c.config.SourceAddress))
}

// SendRaw sends frame with given PGN and payload. Most callers should use
// RequestPGN or SendEngineControl instead.
func (c *Client) SendRaw(pgn uint32, data []byte, destination uint8, priority uint8) error {
	frame, err := EncodeRaw(pgn, data, c.config.SourceAddress, destination, priority)
	if err != nil {
		return err
	}
	return c.send(frame)
}

func (c *Client) send(frame RawFrame) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	if err := c.transport.WriteRawFrame(frame); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if c.config.Debug {
		c.logger.Debug("sent frame",
			"pgn", frame.Header.PGN,
			"destination", frame.Header.Destination,
			"length", frame.Length,
		)
	}
	return nil
}
