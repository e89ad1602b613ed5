package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	j1939 "github.com/mkalda/go-j1939-client"
	"github.com/mkalda/go-j1939-client/capture"
	"github.com/mkalda/go-j1939-client/internal/utils"
	"github.com/spf13/cobra"
)

var (
	outputFormat string
	pgnFilterRaw string
	captureFile  string
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Read and decode messages from the bus",
	Long: `Read frames from the transport, decode them and print one message per
line until interrupted. Optionally record read frames to a capture file that
can later be replayed with --transport capture.`,
	RunE: runDump,
}

func init() {
	dumpCmd.Flags().StringVarP(&outputFormat, "output-format", "o", "json", "in which format messages are printed (json, hex)")
	dumpCmd.Flags().StringVarP(&pgnFilterRaw, "filter", "f", "", "comma separated list of PGNs to print (for example: 0xF004,65262)")
	dumpCmd.Flags().StringVar(&captureFile, "capture", "", "path to file where read frames are recorded")
	rootCmd.AddCommand(dumpCmd)
}

func parsePGNFilter(raw string) (map[uint32]struct{}, error) {
	if raw == "" {
		return nil, nil
	}
	filter := map[uint32]struct{}{}
	for _, part := range strings.Split(raw, ",") {
		pgn, err := strconv.ParseUint(strings.TrimSpace(part), 0, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid PGN filter value %v: %w", part, err)
		}
		filter[uint32(pgn)] = struct{}{}
	}
	return filter, nil
}

func runDump(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	switch outputFormat {
	case "json", "hex":
	default:
		return fmt.Errorf("unknown output format: %v", outputFormat)
	}

	filter, err := parsePGNFilter(pgnFilterRaw)
	if err != nil {
		return err
	}

	transport, err := openTransport()
	if err != nil {
		return err
	}
	if err := transport.Initialize(); err != nil {
		return err
	}
	defer transport.Close()

	var recorder *capture.Writer
	if captureFile != "" {
		file, err := os.Create(captureFile)
		if err != nil {
			return fmt.Errorf("could not create capture file: %w", err)
		}
		recorder = capture.NewWriter(file)
		defer recorder.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("reading bus", "transport", transportKind, "device", deviceAddr)
	for {
		frame, err := transport.ReadRawFrame(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, j1939.ErrTimeout) {
				logger.Warn("no data from bus", "error", err)
				continue
			}
			return err
		}

		if recorder != nil {
			if err := recorder.WriteRawFrame(frame); err != nil {
				return err
			}
		}

		msg := j1939.DecodeFrame(frame)
		if filter != nil {
			if _, ok := filter[msg.Header.PGN]; !ok {
				continue
			}
		}
		if err := printMessage(msg); err != nil {
			return err
		}
	}
}

func printMessage(msg j1939.Message) error {
	switch outputFormat {
	case "json":
		b, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		fmt.Printf("%s\n", b)
	case "hex":
		fmt.Printf("%s %06X %v src=%v dst=%v pri=%v [%v]\n",
			msg.Time.Format("15:04:05.000"),
			msg.Header.PGN,
			msg.PGNName,
			msg.Header.Source,
			msg.Header.Destination,
			msg.Header.Priority,
			utils.HexSpaced(msg.Raw),
		)
	}
	return nil
}
