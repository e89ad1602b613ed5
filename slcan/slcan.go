// Package slcan implements serial line CAN (LAWICEL SLCAN) transport. SLCAN
// adapters (CANable, USBtin, CANUSB and similar) present the CAN bus as a
// serial device where each frame is single ASCII line.
package slcan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	j1939 "github.com/mkalda/go-j1939-client"
)

const (
	// CR terminates every SLCAN command and frame line
	CR = '\r'
	// Bell is sent by adapter to indicate rejected command
	Bell = 0x07

	// maxLineLength is extended data frame line at full length: command byte,
	// 8 ID digits, DLC digit and 16 data digits.
	maxLineLength = 1 + 8 + 1 + 16
)

// ErrNotFrame indicates read line was valid SLCAN traffic but not an extended
// data frame (command acknowledgement, standard frame, remote frame).
var ErrNotFrame = errors.New("slcan line is not an extended data frame")

// Config is configuration for SLCAN Device
type Config struct {
	// ReceiveDataTimeout is maximum duration reads from device can produce no
	// data until read errors out (idle bus).
	ReceiveDataTimeout time.Duration
	// Bitrate sets bus bitrate during Initialize. When 0 setup is skipped and
	// whatever the adapter was left at is used. Supported: 10000, 20000,
	// 50000, 100000, 125000, 250000, 500000, 800000, 1000000.
	Bitrate int
}

// Device is SLCAN adapter implementing j1939.RawFrameReadWriter on top of any
// io.ReadWriter (usually serial port).
type Device struct {
	device  io.ReadWriter
	bitrate int

	sleepFunc func(timeout time.Duration)
	timeNow   func() time.Time

	receiveDataTimeout time.Duration
}

// NewDevice creates new SLCAN device with default configuration.
func NewDevice(device io.ReadWriter) *Device {
	return NewDeviceWithConfig(device, Config{ReceiveDataTimeout: 5 * time.Second})
}

// NewDeviceWithConfig creates new SLCAN device with given config.
func NewDeviceWithConfig(device io.ReadWriter, config Config) *Device {
	d := &Device{
		device:  device,
		bitrate: config.Bitrate,
		sleepFunc: func(timeout time.Duration) {
			time.Sleep(timeout)
		},
		timeNow:            time.Now,
		receiveDataTimeout: 5 * time.Second,
	}
	if config.ReceiveDataTimeout > 0 {
		d.receiveDataTimeout = config.ReceiveDataTimeout
	}
	return d
}

var bitrateCodes = map[int]byte{
	10000:   '0',
	20000:   '1',
	50000:   '2',
	100000:  '3',
	125000:  '4',
	250000:  '5',
	500000:  '6',
	800000:  '7',
	1000000: '8',
}

// Initialize closes possibly open channel, sets bitrate when configured and
// opens the channel.
func (d *Device) Initialize() error {
	// adapter could have been left open by previous user
	if _, err := d.device.Write([]byte{'C', CR}); err != nil {
		return fmt.Errorf("slcan close command failure: %w", err)
	}
	if d.bitrate != 0 {
		code, ok := bitrateCodes[d.bitrate]
		if !ok {
			return fmt.Errorf("%w: unsupported slcan bitrate %v", j1939.ErrInvalidParameter, d.bitrate)
		}
		if _, err := d.device.Write([]byte{'S', code, CR}); err != nil {
			return fmt.Errorf("slcan bitrate command failure: %w", err)
		}
	}
	if _, err := d.device.Write([]byte{'O', CR}); err != nil {
		return fmt.Errorf("slcan open command failure: %w", err)
	}
	return nil
}

// Close closes the channel and underlying device when it is io.Closer.
func (d *Device) Close() error {
	_, err := d.device.Write([]byte{'C', CR})
	if closer, ok := d.device.(io.Closer); ok {
		if closeErr := closer.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}

// WriteRawFrame writes single frame as SLCAN extended data frame line.
func (d *Device) WriteRawFrame(frame j1939.RawFrame) error {
	line, err := marshalFrame(frame)
	if err != nil {
		return err
	}
	_, err = d.device.Write(line)
	return err
}

// ReadRawFrame reads lines from the device until extended data frame is seen.
// This method blocks until a frame is read or an error occurs (including
// context related errors).
func (d *Device) ReadRawFrame(ctx context.Context) (j1939.RawFrame, error) {
	line := make([]byte, 0, maxLineLength)
	buf := make([]byte, 1)
	lastReadWithDataTime := d.timeNow()

	for {
		select {
		case <-ctx.Done():
			return j1939.RawFrame{}, ctx.Err()
		default:
		}

		n, err := d.device.Read(buf)
		if err != nil && !(errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, io.EOF)) {
			return j1939.RawFrame{}, err
		}

		now := d.timeNow()
		if n == 0 {
			if now.Sub(lastReadWithDataTime) > d.receiveDataTimeout {
				if errors.Is(err, io.EOF) {
					return j1939.RawFrame{}, err
				}
				return j1939.RawFrame{}, fmt.Errorf("%w: no data from slcan device", j1939.ErrTimeout)
			}
			d.sleepFunc(10 * time.Millisecond)
			continue
		}
		lastReadWithDataTime = now

		switch buf[0] {
		case Bell: // command was rejected, nothing to parse
			line = line[:0]
		case CR:
			frame, err := parseLine(line)
			line = line[:0]
			if err != nil {
				if errors.Is(err, ErrNotFrame) {
					continue
				}
				return j1939.RawFrame{}, err
			}
			frame.Time = now
			return frame, nil
		default:
			if len(line) >= maxLineLength { // garbage on the line, resynchronize at next CR
				line = line[:0]
				continue
			}
			line = append(line, buf[0])
		}
	}
}

// marshalFrame converts frame to SLCAN extended data frame line
// (T<8 hex ID><DLC><hex data>CR).
func marshalFrame(frame j1939.RawFrame) ([]byte, error) {
	if frame.Length > 8 {
		return nil, fmt.Errorf("%w: frame length can not exceed 8 bytes", j1939.ErrInvalidParameter)
	}
	line := make([]byte, 0, maxLineLength+1)
	line = append(line, 'T')
	line = appendHex(line, frame.Header.CANID(), 8)
	line = append(line, '0'+frame.Length)
	for _, b := range frame.Data[:frame.Length] {
		line = appendHex(line, uint32(b), 2)
	}
	return append(line, CR), nil
}

const hexDigits = "0123456789ABCDEF"

func appendHex(dst []byte, value uint32, digits int) []byte {
	for i := digits - 1; i >= 0; i-- {
		dst = append(dst, hexDigits[(value>>(uint(i)*4))&0xF])
	}
	return dst
}

// parseLine parses single SLCAN line (without CR) to frame. Lines that are
// not extended data frames return ErrNotFrame.
func parseLine(line []byte) (j1939.RawFrame, error) {
	if len(line) == 0 || line[0] != 'T' {
		// acknowledgements (empty, 'z', 'Z', version/status replies),
		// standard ('t') and remote ('r', 'R') frames are skipped
		return j1939.RawFrame{}, ErrNotFrame
	}
	if len(line) < 10 {
		return j1939.RawFrame{}, fmt.Errorf("slcan frame line is too short: %v", len(line))
	}
	canID, err := strconv.ParseUint(string(line[1:9]), 16, 32)
	if err != nil {
		return j1939.RawFrame{}, fmt.Errorf("slcan frame has invalid CAN ID: %w", err)
	}
	length := line[9] - '0'
	if length > 8 {
		return j1939.RawFrame{}, fmt.Errorf("slcan frame has invalid length: %v", string(line[9]))
	}
	if len(line) != 10+2*int(length) {
		return j1939.RawFrame{}, fmt.Errorf("slcan frame data does not match length %v: %v", length, len(line)-10)
	}

	frame := j1939.RawFrame{
		Header: j1939.ParseCANID(uint32(canID)),
		Length: length,
	}
	for i := uint8(0); i < length; i++ {
		b, err := strconv.ParseUint(string(line[10+2*i:12+2*i]), 16, 8)
		if err != nil {
			return j1939.RawFrame{}, fmt.Errorf("slcan frame has invalid data: %w", err)
		}
		frame.Data[i] = uint8(b)
	}
	return frame, nil
}
