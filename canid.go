package j1939

// CANHeader is J1939 addressing fields packed into 29-bit extended CAN ID.
type CANHeader struct {
	PGN         uint32 `json:"pgn"`
	Priority    uint8  `json:"priority"`
	Source      uint8  `json:"source"`
	Destination uint8  `json:"destination"`
	// PDU1 indicates PDU1 (peer-to-peer) format where PDU specific byte is
	// destination address. PDU2 format is inherently broadcast.
	PDU1 bool `json:"pdu1"`
}

// CANID builds 29-bit CAN ID from header fields. For PDU2 PGNs (PDU format
// byte >= 240) the PDU specific byte is part of the PGN itself and
// Destination field is ignored, such messages are always broadcast.
func (h CANHeader) CANID() uint32 {
	pf := uint8(h.PGN >> 8)

	canID := uint32(h.Priority&0x7) << 26 // bits 26,27,28
	canID |= uint32(pf) << 16             // bits 16-23
	if pf < 240 {
		canID |= uint32(h.Destination) << 8 // bits 8-15
	} else {
		canID |= uint32(uint8(h.PGN)) << 8 // bits 8-15
	}
	return canID | uint32(h.Source) // bits 0-7
}

// ParseCANID parses J1939 header fields from CANID (29 bits of 32 bit).
func ParseCANID(canID uint32) CANHeader {
	result := CANHeader{
		Priority: uint8((canID >> 26) & 0x7), // bits 26,27,28
		Source:   uint8(canID),               // bits 0-7
	}
	ps := uint8(canID >> 8)         // bits 8-15
	pduFormat := uint8(canID >> 16) // bits 16-23
	if pduFormat < 240 {
		// PDU1, destination specific
		result.PDU1 = true
		result.PGN = uint32(pduFormat) << 8
		result.Destination = ps
	} else {
		// PDU2, broadcast to all
		result.PGN = uint32(pduFormat)<<8 + uint32(ps)
		result.Destination = AddressGlobal
	}
	return result
}
