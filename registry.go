package j1939

type pgnEntry struct {
	pgn    uint32
	name   string
	length uint8 // expected payload length in bytes
}

// pgnDatabase is static registry of known PGNs. Lookup is linear and first
// match wins so an accidental duplicate entry can not change behaviour of
// existing lookups. Append new entries when adding decode rules.
var pgnDatabase = []pgnEntry{
	{PGNRequest, "Request", 3},
	{PGNAddressClaimed, "Address Claimed", 8},
	{PGNEEC1, "Electronic Engine Controller 1 (EEC1)", 8},
	{PGNETC1, "Electronic Transmission Controller 1 (ETC1)", 8},
	{PGNPropTransStatus, "Proprietary Transmission Status", 8},
	{PGNET1, "Engine Temperature 1 (ET1)", 8},
	{PGNFuelEconomy, "Fuel Economy (FE)", 8},
	{PGNDM1, "DM1 - Active Diagnostic Trouble Codes", 8},
	{PGNDM2, "DM2 - Previously Active DTCs", 8},
	{PGNEngineControlCmd, "Engine Control Command (Proprietary B)", 8},
}

// PGNUnknownName is returned by PGNName for PGNs that are not in the registry.
const PGNUnknownName = "Unknown"

// PGNName returns canonical name for given PGN. Returns PGNUnknownName for
// PGNs not in the registry, never fails.
func PGNName(pgn uint32) string {
	for _, entry := range pgnDatabase {
		if entry.pgn == pgn {
			return entry.name
		}
	}
	return PGNUnknownName
}

// PGNDataLength returns expected payload length for given PGN.
func PGNDataLength(pgn uint32) (uint8, bool) {
	for _, entry := range pgnDatabase {
		if entry.pgn == pgn {
			return entry.length, true
		}
	}
	return 0, false
}
