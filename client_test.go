package j1939

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

type testTransport struct {
	frames      []RawFrame
	written     []RawFrame
	initErr     error
	writeErr    error
	closeCalled int
}

func (t *testTransport) Initialize() error {
	return t.initErr
}

func (t *testTransport) Close() error {
	t.closeCalled++
	return nil
}

func (t *testTransport) ReadRawFrame(ctx context.Context) (RawFrame, error) {
	if err := ctx.Err(); err != nil {
		return RawFrame{}, err
	}
	if len(t.frames) == 0 {
		return RawFrame{}, io.EOF
	}
	frame := t.frames[0]
	t.frames = t.frames[1:]
	return frame, nil
}

func (t *testTransport) WriteRawFrame(frame RawFrame) error {
	if t.writeErr != nil {
		return t.writeErr
	}
	t.written = append(t.written, frame)
	return nil
}

func newTestClient(t *testing.T) (*Client, *testTransport) {
	transport := &testTransport{}
	client, err := NewClient(Config{SourceAddress: AddressDiagTool2}, transport)
	assert.NoError(t, err)
	return client, transport
}

func TestNewClient(t *testing.T) {
	var testCases = []struct {
		name        string
		config      Config
		transport   RawFrameReadWriter
		expectError string
	}{
		{
			name:      "ok",
			config:    Config{SourceAddress: 0xFD},
			transport: &testTransport{},
		},
		{
			name:        "nok, source address out of range",
			config:      Config{SourceAddress: 0xFE},
			transport:   &testTransport{},
			expectError: "invalid parameter: source address must be 0x00-0xFD, got 0xFE",
		},
		{
			name:        "nok, missing transport",
			config:      Config{SourceAddress: 0x01},
			transport:   nil,
			expectError: "invalid parameter: transport is required",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(tc.config, tc.transport)

			if tc.expectError != "" {
				assert.EqualError(t, err, tc.expectError)
				assert.ErrorIs(t, err, ErrInvalidParameter)
				assert.Nil(t, client)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.config.SourceAddress, client.SourceAddress())
			assert.False(t, client.Connected())
		})
	}
}

func TestClientConnectDisconnect(t *testing.T) {
	client, transport := newTestClient(t)

	assert.NoError(t, client.Connect())
	assert.True(t, client.Connected())

	assert.ErrorIs(t, client.Connect(), ErrAlreadyConnected)

	assert.NoError(t, client.Disconnect())
	assert.False(t, client.Connected())
	assert.Equal(t, 1, transport.closeCalled)

	// disconnecting again is not an error and does not touch the transport
	assert.NoError(t, client.Disconnect())
	assert.Equal(t, 1, transport.closeCalled)
}

func TestClientDisconnectClearsSubscriptions(t *testing.T) {
	client, _ := newTestClient(t)
	assert.NoError(t, client.Connect())

	invoked := 0
	assert.NoError(t, client.OnPGN(PGNET1, func(Message) { invoked++ }))

	assert.NoError(t, client.Disconnect())
	assert.NoError(t, client.Connect())

	client.DispatchFrame(testFrame(PGNET1, AddressEngine1, []byte{65}))
	assert.Equal(t, 0, invoked)
}

func TestClientDispatchFrame(t *testing.T) {
	client, _ := newTestClient(t)

	var received []Message
	assert.NoError(t, client.OnPGN(PGNEEC1, func(msg Message) {
		received = append(received, msg)
	}))

	client.DispatchFrame(testFrame(PGNEEC1, AddressEngine1, []byte{0, 0, 125, 200, 0, 0, 0, 0}))
	// frame with not subscribed PGN is dropped silently
	client.DispatchFrame(testFrame(PGNET1, AddressEngine1, []byte{65}))

	assert.Len(t, received, 1)
	speed, ok := received[0].Signals.FindByName("engineSpeed")
	assert.True(t, ok)
	value, ok := speed.Float()
	assert.True(t, ok)
	assert.Equal(t, float32(25.0), value)

	client.OffPGN(PGNEEC1)
	client.DispatchFrame(testFrame(PGNEEC1, AddressEngine1, []byte{0, 0, 125, 200, 0, 0, 0, 0}))
	assert.Len(t, received, 1)
}

func TestClientDispatchFirstMatchWins(t *testing.T) {
	client, _ := newTestClient(t)

	first := 0
	second := 0
	assert.NoError(t, client.OnPGN(PGNDM1, func(Message) { first++ }))
	assert.NoError(t, client.OnPGN(PGNDM1, func(Message) { second++ }))

	client.DispatchFrame(testFrame(PGNDM1, AddressEngine1, []byte{0x40, 0xFF, 0x9E, 0x02, 0x83, 0, 0, 0}))
	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second)

	// removing first subscription exposes the second one
	client.OffPGN(PGNDM1)
	client.DispatchFrame(testFrame(PGNDM1, AddressEngine1, []byte{0x40, 0xFF, 0x9E, 0x02, 0x83, 0, 0, 0}))
	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
}

func TestClientOnPGNCapacity(t *testing.T) {
	client, _ := newTestClient(t)

	invoked := 0
	for i := 0; i < maxSubscriptions; i++ {
		assert.NoError(t, client.OnPGN(uint32(i), func(Message) { invoked++ }))
	}
	assert.ErrorIs(t, client.OnPGN(PGNET1, func(Message) {}), ErrOutOfCapacity)

	// prior subscriptions remain intact
	client.DispatchFrame(RawFrame{Header: CANHeader{PGN: 5}})
	assert.Equal(t, 1, invoked)

	// freeing a slot allows subscribing again
	client.OffPGN(5)
	assert.NoError(t, client.OnPGN(PGNET1, func(Message) {}))
}

func TestClientOnPGNInvalidHandler(t *testing.T) {
	client, _ := newTestClient(t)
	assert.ErrorIs(t, client.OnPGN(PGNET1, nil), ErrInvalidParameter)
}

func TestClientOffPGNUnknownIsNoop(t *testing.T) {
	client, _ := newTestClient(t)
	client.OffPGN(PGNET1)
}

func TestClientHandlerMaySubscribe(t *testing.T) {
	client, _ := newTestClient(t)

	nested := 0
	assert.NoError(t, client.OnPGN(PGNRequest, func(msg Message) {
		client.OffPGN(PGNRequest)
		assert.NoError(t, client.OnPGN(PGNET1, func(Message) { nested++ }))
	}))

	client.DispatchFrame(testFrame(PGNRequest, AddressDiagTool1, []byte{0x04, 0xF0, 0x00}))
	client.DispatchFrame(testFrame(PGNET1, AddressEngine1, []byte{65}))
	assert.Equal(t, 1, nested)
}

func TestClientRequestPGN(t *testing.T) {
	client, transport := newTestClient(t)

	assert.ErrorIs(t, client.RequestPGN(PGNET1, AddressGlobal), ErrNotConnected)

	assert.NoError(t, client.Connect())
	assert.NoError(t, client.RequestPGN(PGNET1, AddressGlobal))

	assert.Len(t, transport.written, 1)
	frame := transport.written[0]
	assert.Equal(t, PGNRequest, frame.Header.PGN)
	assert.Equal(t, AddressDiagTool2, frame.Header.Source)
	assert.Equal(t, []byte{0xEE, 0xFE, 0x00}, frame.Data[:frame.Length])
}

func TestClientSendEngineControl(t *testing.T) {
	client, transport := newTestClient(t)

	cmd := EngineControlCommand{TargetRPM: 1500, Enable: true}
	assert.ErrorIs(t, client.SendEngineControl(cmd), ErrNotConnected)

	assert.NoError(t, client.Connect())
	assert.NoError(t, client.SendEngineControl(cmd))

	assert.Len(t, transport.written, 1)
	assert.Equal(t, PGNEngineControlCmd, transport.written[0].Header.PGN)
	assert.Equal(t, uint8(8), transport.written[0].Length)
}

func TestClientSendRaw(t *testing.T) {
	client, transport := newTestClient(t)
	assert.NoError(t, client.Connect())

	assert.ErrorIs(t, client.SendRaw(PGNFuelEconomy, nil, AddressGlobal, 6), ErrInvalidParameter)

	assert.NoError(t, client.SendRaw(PGNFuelEconomy, []byte{1, 2}, AddressGlobal, 6))
	assert.Len(t, transport.written, 1)
	assert.Equal(t, uint8(2), transport.written[0].Length)
}

func TestClientSendTransportError(t *testing.T) {
	client, transport := newTestClient(t)
	assert.NoError(t, client.Connect())

	transport.writeErr = io.ErrClosedPipe
	err := client.RequestPGN(PGNET1, AddressGlobal)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestClientPoll(t *testing.T) {
	client, transport := newTestClient(t)

	_, err := client.Poll(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)

	assert.NoError(t, client.Connect())

	received := 0
	assert.NoError(t, client.OnPGN(PGNET1, func(Message) { received++ }))

	transport.frames = []RawFrame{
		testFrame(PGNET1, AddressEngine1, []byte{65}),
		testFrame(PGNEEC1, AddressEngine1, []byte{0, 0, 125, 200, 0, 0, 0, 0}),
		testFrame(PGNET1, AddressEngine2, []byte{80}),
	}

	processed, err := client.Poll(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 3, processed)
	assert.Equal(t, 2, received)
}
