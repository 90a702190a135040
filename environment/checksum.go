package environment

import "github.com/sigurn/crc8"

// Sensirion CRC-8: polynomial 0x31, init 0xFF, no reflection, no final xor.
var crcTable = crc8.MakeTable(crc8.Params{
	Poly:   0x31,
	Init:   0xFF,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x00,
	Check:  0xF7,
	Name:   "CRC-8/SENSIRION",
})

// Checksum computes the Sensirion CRC-8 over data.
func Checksum(data []byte) byte {
	return crc8.Checksum(data, crcTable)
}

// CheckField reports whether check is the checksum of field.
func CheckField(field []byte, check byte) bool {
	return Checksum(field) == check
}
