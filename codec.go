package j1939

import (
	"encoding/binary"
	"fmt"
)

// defaultPriority is used for all frames this library encodes. Lower value
// wins bus arbitration, 6 is the J1939 default for non-critical traffic.
const defaultPriority uint8 = 6

// Fault injection flags for EngineControlCommand.
const (
	FaultNone     uint8 = 0x00
	FaultOverheat uint8 = 0x01
)

// EngineControlCommand is payload for PGN 61184 (Engine Control Command).
type EngineControlCommand struct {
	TargetRPM uint16
	// Enable indicates that command should be applied
	Enable bool
	// FaultFlags are fault injection flags (Fault* constants)
	FaultFlags uint8
}

// DecodeFrame decodes single CAN frame into Message. Decoding never fails:
// unknown PGNs and truncated payloads produce a message with fewer (or no)
// signals instead of an error.
func DecodeFrame(frame RawFrame) Message {
	msg := Message{
		Header:  frame.Header,
		PGNName: PGNName(frame.Header.PGN),
		Raw:     append([]byte{}, frame.Data[:frame.Length]...),
		Time:    frame.Time,
	}

	data := frame.Data
	length := frame.Length

	switch frame.Header.PGN {
	case PGNEEC1:
		if length >= 5 {
			rawSpeed := binary.LittleEndian.Uint16(data[3:5]) // 0.125 rpm/bit
			msg.addSignal(FloatSignal("engineSpeed", float32(rawSpeed)*0.125))
		}
		if length >= 3 {
			msg.addSignal(IntSignal("torque", int32(data[2])-125)) // -125 offset
		}
	case PGNET1:
		if length >= 1 {
			msg.addSignal(IntSignal("coolantTemp", int32(data[0])-40)) // -40 C offset
		}
	case PGNETC1, PGNPropTransStatus:
		if length >= 2 {
			rawSpeed := binary.LittleEndian.Uint16(data[0:2])
			msg.addSignal(FloatSignal("outputShaftSpeed", float32(rawSpeed)*0.125))
		}
		if length >= 5 {
			msg.addSignal(IntSignal("gear", int32(data[4])))
		}
	case PGNRequest:
		if length >= 3 {
			requestedPGN := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16
			msg.addSignal(IntSignal("requestedPGN", int32(requestedPGN)))
		}
	case PGNEngineControlCmd:
		if length >= 3 {
			msg.addSignal(IntSignal("targetRpm", int32(binary.LittleEndian.Uint16(data[0:2]))))
			msg.addSignal(BoolSignal("enable", data[2] == 1))
		}
	case PGNDM1:
		if length >= 5 {
			msg.addSignal(IntSignal("lampStatus", int32(data[0])))
			spn := uint32(data[2]) | uint32(data[3])<<8 | uint32(data[4]&0xE0)<<11
			msg.addSignal(IntSignal("spn", int32(spn)))
			msg.addSignal(IntSignal("fmi", int32(data[4]&0x1F)))
		}
	}
	return msg
}

func newHeader(pgn uint32, source uint8, priority uint8, destination uint8) CANHeader {
	header := CANHeader{
		PGN:      pgn,
		Priority: priority,
		Source:   source,
		PDU1:     uint8(pgn>>8) < 240,
	}
	if header.PDU1 {
		header.Destination = destination
	} else {
		// PDU2 PGNs are broadcast only, given destination is dropped
		header.Destination = AddressGlobal
	}
	return header
}

// EncodeRequest builds Request PGN (59904) frame asking destination to send
// given PGN.
func EncodeRequest(requestedPGN uint32, source uint8, destination uint8) RawFrame {
	frame := RawFrame{
		Header: newHeader(PGNRequest, source, defaultPriority, destination),
		Length: 3,
	}
	frame.Data[0] = uint8(requestedPGN)
	frame.Data[1] = uint8(requestedPGN >> 8)
	frame.Data[2] = uint8(requestedPGN >> 16)
	return frame
}

// EncodeEngineControl builds Engine Control Command PGN (61184) frame. Frame
// is addressed globally, unused payload bytes are filled with 0xFF ("not
// available").
func EncodeEngineControl(cmd EngineControlCommand, source uint8) RawFrame {
	frame := RawFrame{
		Header: newHeader(PGNEngineControlCmd, source, defaultPriority, AddressGlobal),
		Length: 8,
	}
	binary.LittleEndian.PutUint16(frame.Data[0:2], cmd.TargetRPM)
	if cmd.Enable {
		frame.Data[2] = 1
	}
	frame.Data[3] = cmd.FaultFlags
	frame.Data[4] = 0xFF
	frame.Data[5] = 0xFF
	frame.Data[6] = 0xFF
	frame.Data[7] = 0xFF
	return frame
}

// EncodeRaw builds frame for given PGN with caller provided payload.
func EncodeRaw(pgn uint32, data []byte, source uint8, destination uint8, priority uint8) (RawFrame, error) {
	if len(data) == 0 || len(data) > 8 {
		return RawFrame{}, fmt.Errorf("%w: payload length must be 1-8 bytes, got %v", ErrInvalidParameter, len(data))
	}
	frame := RawFrame{
		Header: newHeader(pgn, source, priority, destination),
		Length: uint8(len(data)),
	}
	copy(frame.Data[:], data)
	return frame, nil
}
