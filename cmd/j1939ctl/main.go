package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	j1939 "github.com/mkalda/go-j1939-client"
	"github.com/mkalda/go-j1939-client/capture"
	"github.com/mkalda/go-j1939-client/slcan"
	"github.com/mkalda/go-j1939-client/socketcan"
	"github.com/spf13/cobra"
	"github.com/tarm/serial"
)

var (
	transportKind string
	deviceAddr    string
	baudRate      int
	bitrate       int
	sourceAddr    uint8
	debug         bool
)

var rootCmd = &cobra.Command{
	Use:   "j1939ctl",
	Short: "J1939 bus tool",
	Long: `j1939ctl reads and writes SAE J1939 messages on a CAN bus.

Transports:
  socketcan: --transport socketcan --device can0
  slcan:     --transport slcan --device /dev/ttyACM0 [--baud 115200] [--bitrate 250000]
  capture:   --transport capture --device bus.capture (read only replay)`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&transportKind, "transport", "t", "socketcan", "transport kind (socketcan, slcan, capture)")
	rootCmd.PersistentFlags().StringVarP(&deviceAddr, "device", "d", "can0", "CAN interface name, serial device path or capture file path")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "serial device baud rate (slcan only)")
	rootCmd.PersistentFlags().IntVar(&bitrate, "bitrate", 0, "CAN bus bitrate to set up (slcan only, 0 keeps adapter setting)")
	rootCmd.PersistentFlags().Uint8VarP(&sourceAddr, "source", "s", j1939.AddressDiagTool2, "source address this tool claims (0x00-0xFD)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// newLogger builds colorized slog logger. Color is dropped when stderr is not
// a terminal.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if runtime.GOOS == "windows" {
		handler = tint.NewHandler(colorable.NewColorableStderr(), &tint.Options{Level: level})
	} else {
		w := os.Stderr
		handler = tint.NewHandler(w, &tint.Options{
			Level:   level,
			NoColor: !isatty.IsTerminal(w.Fd()),
		})
	}
	return slog.New(handler)
}

// openTransport opens transport selected by persistent flags.
func openTransport() (j1939.RawFrameReadWriter, error) {
	switch transportKind {
	case "socketcan":
		return socketcan.NewDevice(deviceAddr), nil
	case "slcan":
		port, err := serial.OpenPort(&serial.Config{
			Name:        deviceAddr,
			Baud:        baudRate,
			ReadTimeout: 50 * time.Millisecond,
		})
		if err != nil {
			return nil, fmt.Errorf("could not open serial device: %w", err)
		}
		return slcan.NewDeviceWithConfig(port, slcan.Config{Bitrate: bitrate}), nil
	case "capture":
		file, err := os.Open(deviceAddr)
		if err != nil {
			return nil, fmt.Errorf("could not open capture file: %w", err)
		}
		return replayTransport{Reader: capture.NewReader(file)}, nil
	}
	return nil, fmt.Errorf("unknown transport kind: %v", transportKind)
}

// replayTransport adapts read only capture Reader to client transport.
type replayTransport struct {
	*capture.Reader
}

func (t replayTransport) WriteRawFrame(j1939.RawFrame) error {
	return fmt.Errorf("%w: capture transport can not send", j1939.ErrUnsupported)
}

func newClient() (*j1939.Client, error) {
	transport, err := openTransport()
	if err != nil {
		return nil, err
	}
	return j1939.NewClient(j1939.Config{
		InterfaceName: deviceAddr,
		SourceAddress: sourceAddr,
		Bitrate:       bitrate,
		Debug:         debug,
		Logger:        newLogger(),
	}, transport)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
