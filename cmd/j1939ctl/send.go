package main

import (
	"fmt"
	"strconv"

	j1939 "github.com/mkalda/go-j1939-client"
	"github.com/spf13/cobra"
)

var (
	destinationAddr uint8
	targetRPM       uint16
	engineEnable    bool
	faultOverheat   bool
)

var requestCmd = &cobra.Command{
	Use:   "request <pgn>",
	Short: "Send Request PGN (59904) for given PGN",
	Long: `Send Request PGN asking destination to send given PGN. Response arrives as
normal traffic and can be seen with the dump command.`,
	Args: cobra.ExactArgs(1),
	RunE: runRequest,
}

var engineCmd = &cobra.Command{
	Use:   "engine",
	Short: "Send Engine Control Command (61184)",
	RunE:  runEngine,
}

func init() {
	requestCmd.Flags().Uint8Var(&destinationAddr, "destination", j1939.AddressGlobal, "destination address (255 is broadcast)")
	rootCmd.AddCommand(requestCmd)

	engineCmd.Flags().Uint16Var(&targetRPM, "rpm", 0, "target engine RPM")
	engineCmd.Flags().BoolVar(&engineEnable, "enable", false, "apply the command")
	engineCmd.Flags().BoolVar(&faultOverheat, "fault-overheat", false, "inject overheat fault")
	rootCmd.AddCommand(engineCmd)
}

func runRequest(cmd *cobra.Command, args []string) error {
	pgn, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		return fmt.Errorf("invalid PGN %v: %w", args[0], err)
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	if err := client.Connect(); err != nil {
		return err
	}
	defer client.Disconnect()

	if err := client.RequestPGN(uint32(pgn), destinationAddr); err != nil {
		return err
	}
	fmt.Printf("requested PGN %v (%v) from %v\n", pgn, j1939.PGNName(uint32(pgn)), destinationAddr)
	return nil
}

func runEngine(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	if err := client.Connect(); err != nil {
		return err
	}
	defer client.Disconnect()

	command := j1939.EngineControlCommand{
		TargetRPM: targetRPM,
		Enable:    engineEnable,
	}
	if faultOverheat {
		command.FaultFlags |= j1939.FaultOverheat
	}
	if err := client.SendEngineControl(command); err != nil {
		return err
	}
	fmt.Printf("sent engine control command: rpm=%v enable=%v faults=0x%02X\n", command.TargetRPM, command.Enable, command.FaultFlags)
	return nil
}
