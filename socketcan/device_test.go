package socketcan

import (
	"context"
	"fmt"
	"testing"

	j1939 "github.com/mkalda/go-j1939-client"
	"github.com/stretchr/testify/assert"
)

var _ j1939.RawFrameReadWriter = (*Device)(nil)

// sudo ip link set can0 down && sudo /sbin/ip link set can0 up type can bitrate 250000

func xTestReadFrame(t *testing.T) {
	con, err := NewConnection("can0")
	if err != nil {
		assert.NoError(t, err)
		return
	}
	defer con.Close()

	f, err := con.ReadRawFrame()
	if err != nil {
		assert.NoError(t, err)
		return
	}
	fmt.Printf("frame: %+v\n", f)
}

func xTestReadDevice(t *testing.T) {
	dev := NewDevice("can0")

	if err := dev.Initialize(); err != nil {
		assert.NoError(t, err)
		return
	}
	defer dev.Close()

	for i := 0; i < 100; i++ {
		f, err := dev.ReadRawFrame(context.Background())
		if err != nil {
			assert.NoError(t, err)
			return
		}
		fmt.Printf("message: %+v\n", j1939.DecodeFrame(f))
	}
}
