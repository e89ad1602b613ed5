// Package j1939 implements encoding and decoding of single frame SAE J1939
// messages and a small client with PGN subscription dispatch. Multi-frame
// transport protocol (TP.CM/TP.DT) assembly is not implemented, all PGNs
// handled here fit into a single 8 byte CAN frame.
package j1939

import (
	"encoding/json"
	"time"
)

// Well-known PGNs. These values are a stable contract between the client and
// devices on the bus.
const (
	// PGNRequest (59904) is used to request data from other ECUs
	PGNRequest uint32 = 0xEA00
	// PGNAddressClaimed (60928)
	PGNAddressClaimed uint32 = 0xEE00
	// PGNEEC1 (61444) Electronic Engine Controller 1
	PGNEEC1 uint32 = 0xF004
	// PGNETC1 (61443) Electronic Transmission Controller 1
	PGNETC1 uint32 = 0xF003
	// PGNPropTransStatus (61440) Proprietary Transmission Status
	PGNPropTransStatus uint32 = 0xF000
	// PGNET1 (65262) Engine Temperature 1
	PGNET1 uint32 = 0xFEEE
	// PGNFuelEconomy (65266)
	PGNFuelEconomy uint32 = 0xFEF2
	// PGNDM1 (65226) Active Diagnostic Trouble Codes
	PGNDM1 uint32 = 0xFECA
	// PGNDM2 (65227) Previously Active DTCs
	PGNDM2 uint32 = 0xFECB
	// PGNEngineControlCmd (61184) Engine Control Command (Proprietary B)
	PGNEngineControlCmd uint32 = 0xEF00
)

// Well-known source addresses.
const (
	AddressEngine1           uint8 = 0x00
	AddressEngine2           uint8 = 0x01
	AddressTransmission1     uint8 = 0x03
	AddressBrakes            uint8 = 0x0B
	AddressInstrumentCluster uint8 = 0x17
	AddressBody              uint8 = 0x21
	AddressDiagTool1         uint8 = 0xF9
	AddressDiagTool2         uint8 = 0xFA
	// AddressGlobal is broadcast to all nodes in the bus
	AddressGlobal uint8 = 0xFF
)

// RawFrame is single CAN frame read from or written to the bus.
type RawFrame struct {
	// Time is when frame was read from the bus. Filled by the transport.
	Time time.Time

	Header CANHeader
	Length uint8 // 0-8
	Data   [8]byte
}

// SignalType is type tag for Signal value.
type SignalType uint8

const (
	SignalTypeInt SignalType = iota
	SignalTypeFloat
	SignalTypeBool
)

func (t SignalType) String() string {
	switch t {
	case SignalTypeInt:
		return "int"
	case SignalTypeFloat:
		return "float"
	case SignalTypeBool:
		return "bool"
	}
	return "unknown"
}

// Signal is single named SPN value decoded from PGN payload. Value is stored
// with its type tag and is only accessible through the accessor matching the
// tag so that tag and value can not get out of sync.
type Signal struct {
	Name string
	Type SignalType

	i32 int32
	f32 float32
	b   bool
}

func IntSignal(name string, value int32) Signal {
	return Signal{Name: name, Type: SignalTypeInt, i32: value}
}

func FloatSignal(name string, value float32) Signal {
	return Signal{Name: name, Type: SignalTypeFloat, f32: value}
}

func BoolSignal(name string, value bool) Signal {
	return Signal{Name: name, Type: SignalTypeBool, b: value}
}

// Int returns signal value when signal is of int type.
func (s Signal) Int() (int32, bool) {
	return s.i32, s.Type == SignalTypeInt
}

// Float returns signal value when signal is of float type.
func (s Signal) Float() (float32, bool) {
	return s.f32, s.Type == SignalTypeFloat
}

// Bool returns signal value when signal is of bool type.
func (s Signal) Bool() (bool, bool) {
	return s.b, s.Type == SignalTypeBool
}

// AsFloat64 converts value to float64 if it is possible.
func (s Signal) AsFloat64() (float64, bool) {
	switch s.Type {
	case SignalTypeInt:
		return float64(s.i32), true
	case SignalTypeFloat:
		return float64(s.f32), true
	}
	return 0, false
}

func (s Signal) MarshalJSON() ([]byte, error) {
	var value interface{}
	switch s.Type {
	case SignalTypeInt:
		value = s.i32
	case SignalTypeFloat:
		value = s.f32
	case SignalTypeBool:
		value = s.b
	}
	return json.Marshal(struct {
		Name  string      `json:"name"`
		Type  string      `json:"type"`
		Value interface{} `json:"value"`
	}{
		Name:  s.Name,
		Type:  s.Type.String(),
		Value: value,
	})
}

// Signals is slice of Signal
type Signals []Signal

func (ss Signals) FindByName(name string) (Signal, bool) {
	for _, s := range ss {
		if s.Name == name {
			return s, true
		}
	}
	return Signal{}, false
}

// MaxSignalsPerMessage limits how many signals single decoded message can
// carry. None of the supported PGNs decode to more than 3 signals so the
// limit is only reachable when new PGN rules are added.
const MaxSignalsPerMessage = 8

// Message is decoded value of single frame PGN packet.
type Message struct {
	Header CANHeader `json:"header"`
	// PGNName is canonical name from PGN database or "Unknown"
	PGNName string  `json:"pgn_name"`
	Signals Signals `json:"signals"`
	// DroppedSignals counts signals that did not fit into Signals because
	// MaxSignalsPerMessage was reached during decode.
	DroppedSignals uint8 `json:"dropped_signals,omitempty"`
	// Raw is copy of undecoded frame payload
	Raw []byte `json:"raw"`
	// Time is when source frame was read from the bus
	Time time.Time `json:"time"`
}

func (m *Message) addSignal(s Signal) {
	if len(m.Signals) >= MaxSignalsPerMessage {
		m.DroppedSignals++
		return
	}
	m.Signals = append(m.Signals, s)
}
