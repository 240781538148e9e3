package co2

import (
	"encoding/binary"

	"github.com/sigurn/crc8"
)

// Sensirion CRC-8: polynomial 0x31 (x8 + x5 + x4 + 1), init 0xFF, no
// reflection, no final XOR.
var checksumTable = crc8.MakeTable(crc8.Params{
	Poly:   0x31,
	Init:   0xFF,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x00,
	Check:  0xF7,
	Name:   "CRC-8/Sensirion",
})

// Checksum computes the CRC the SCD4x attaches to every transferred word.
func Checksum(data [2]byte) byte {
	return crc8.Checksum(data[:], checksumTable)
}

// VerifyChecksum fails with *ChecksumMismatchError when expected is not the
// CRC of data.
func VerifyChecksum(data [2]byte, expected byte) error {
	actual := Checksum(data)
	if actual != expected {
		return &ChecksumMismatchError{Actual: actual, Expected: expected}
	}
	return nil
}

// encodeWord lays a word out as it travels on the wire: MSB, LSB, CRC.
func encodeWord(word uint16) [3]byte {
	var out [3]byte
	binary.BigEndian.PutUint16(out[:2], word)
	out[2] = Checksum([2]byte{out[0], out[1]})
	return out
}

// decodeWord checks and extracts a word from a 3-byte wire group.
func decodeWord(group []byte) (uint16, error) {
	payload := [2]byte{group[0], group[1]}
	if err := VerifyChecksum(payload, group[2]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(payload[:]), nil
}
