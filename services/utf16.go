package services

import (
	"encoding/binary"
	"unicode/utf16"
)

// EncodeUTF16LE encodes s as little-endian UTF-16 followed by a two byte
// null terminator, the layout Windows expects in the XP* EXIF fields.
// Characters outside the BMP are written as surrogate pairs.
func EncodeUTF16LE(s string) []byte {
	return encodeUnitsLE(utf16.Encode([]rune(s)))
}

func encodeUnitsLE(units []uint16) []byte {
	out := make([]byte, 2*len(units)+2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[2*i:], u)
	}
	return out
}

// truncateUnits cuts units to at most n code units without leaving a high
// surrogate dangling at the end.
func truncateUnits(units []uint16, n int) []uint16 {
	if len(units) <= n {
		return units
	}
	cut := n
	if cut > 0 && units[cut-1] >= 0xD800 && units[cut-1] <= 0xDBFF {
		cut--
	}
	return units[:cut]
}
