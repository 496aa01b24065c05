package sqandr

import "github.com/sigurn/crc16"

var diagnosticCRCTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// CRC calculates the CRC-16/CCITT-FALSE checksum used to compare diagnostic
// payloads.
func CRC(in []byte) uint16 {
	return crc16.Checksum(in, diagnosticCRCTable)
}
