// Package virtualcan is in-memory CAN bus transport for tests and examples.
// Devices attached to the same named bus receive every frame written by any
// other device on that bus.
package virtualcan

import (
	"context"
	"fmt"
	"sync"
	"time"

	j1939 "github.com/mkalda/go-j1939-client"
)

// deviceQueueSize is per device receive buffer. Writes to a device with full
// buffer drop the frame for that device, slow consumers can not block the bus.
const deviceQueueSize = 64

var (
	busesMu sync.Mutex
	buses   = map[string]*bus{}
)

type bus struct {
	name string

	mu      sync.Mutex
	devices []*Device
}

func openBus(name string) *bus {
	busesMu.Lock()
	defer busesMu.Unlock()

	b, ok := buses[name]
	if !ok {
		b = &bus{name: name}
		buses[name] = b
	}
	return b
}

func (b *bus) attach(d *Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices = append(b.devices, d)
}

func (b *bus) detach(d *Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, existing := range b.devices {
		if existing == d {
			b.devices = append(b.devices[:i], b.devices[i+1:]...)
			return
		}
	}
}

// broadcast delivers frame to all devices on the bus except the sender.
func (b *bus) broadcast(sender *Device, frame j1939.RawFrame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, device := range b.devices {
		if device == sender {
			continue
		}
		select {
		case device.queue <- frame:
		default: // receiver buffer is full, frame is dropped for that device
		}
	}
}

// Device is single node attached to a virtual bus. Implements
// j1939.RawFrameReadWriter.
type Device struct {
	busName string
	timeNow func() time.Time

	mu       sync.Mutex
	attached bool
	queue    chan j1939.RawFrame
}

func NewDevice(busName string) *Device {
	return &Device{
		busName: busName,
		timeNow: time.Now,
	}
}

func (d *Device) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.attached {
		return fmt.Errorf("device is already attached to bus %v", d.busName)
	}
	d.queue = make(chan j1939.RawFrame, deviceQueueSize)
	openBus(d.busName).attach(d)
	d.attached = true
	return nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.attached {
		return nil
	}
	openBus(d.busName).detach(d)
	d.attached = false
	return nil
}

// WriteRawFrame stamps frame with current time and delivers it to all other
// devices on the bus.
func (d *Device) WriteRawFrame(frame j1939.RawFrame) error {
	d.mu.Lock()
	attached := d.attached
	d.mu.Unlock()
	if !attached {
		return fmt.Errorf("device is not attached to bus %v", d.busName)
	}

	frame.Time = d.timeNow()
	openBus(d.busName).broadcast(d, frame)
	return nil
}

// ReadRawFrame blocks until another device writes a frame to the bus or
// context is done.
func (d *Device) ReadRawFrame(ctx context.Context) (j1939.RawFrame, error) {
	d.mu.Lock()
	attached := d.attached
	queue := d.queue
	d.mu.Unlock()
	if !attached {
		return j1939.RawFrame{}, fmt.Errorf("device is not attached to bus %v", d.busName)
	}

	select {
	case <-ctx.Done():
		return j1939.RawFrame{}, ctx.Err()
	case frame := <-queue:
		return frame, nil
	}
}
