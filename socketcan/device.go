package socketcan

import (
	"context"
	"errors"
	"fmt"
	"time"

	j1939 "github.com/mkalda/go-j1939-client"
)

// Device is SocketCAN transport implementing j1939.RawFrameReadWriter.
type Device struct {
	conn *Connection

	// ifName is SocketCAN interface name. For example: can0
	ifName string

	// receiveDataTimeout is to limit amount of time reads can result no data. to timeout the connection when there is no
	// interaction in bus. This is different from for example serial device readTimeout which limits how much time Read
	// call blocks but we want to Reads block small amount of time to be able to check if context was cancelled during read
	// but at the same time we want to be able to detect when there are no coming from bus for excessive amount of time.
	receiveDataTimeout time.Duration

	timeNow func() time.Time
}

func NewDevice(ifName string) *Device {
	return &Device{
		conn: nil,

		ifName:             ifName,
		timeNow:            time.Now,
		receiveDataTimeout: 5 * time.Second,
	}
}

func (d *Device) Close() error {
	return d.conn.Close()
}

func (d *Device) Initialize() error {
	conn, err := NewConnection(d.ifName)
	if err != nil {
		return err
	}
	d.conn = conn

	return nil
}

func (d *Device) WriteRawFrame(frame j1939.RawFrame) error {
	if d.conn == nil {
		return errors.New("device is not initialized")
	}
	if err := d.conn.SendFrame(frame); err != nil {
		if errors.Is(err, errWriteTimeout) {
			return fmt.Errorf("%w: socketcan write timeout", j1939.ErrTimeout)
		}
		return err
	}
	return nil
}

func (d *Device) ReadRawFrame(ctx context.Context) (j1939.RawFrame, error) {
	start := d.timeNow()
	for {
		select {
		case <-ctx.Done():
			return j1939.RawFrame{}, ctx.Err()
		default:
		}

		if err := d.conn.SetReadTimeout(50 * time.Millisecond); err != nil { // max 50ms block time for read per iteration
			return j1939.RawFrame{}, err
		}
		frame, err := d.conn.ReadRawFrame()

		now := d.timeNow()
		// read timeouts do not end the read immediately. we set a new short
		// deadline on next iteration until receiveDataTimeout of idle bus has
		// passed.
		if err != nil {
			if errors.Is(err, errReadTimeout) {
				if now.Sub(start) > d.receiveDataTimeout {
					return j1939.RawFrame{}, fmt.Errorf("%w: no data from bus", j1939.ErrTimeout)
				}
				continue
			}
			return j1939.RawFrame{}, err
		}

		return frame, nil
	}
}
