package mpegts

import "errors"

// ErrCRC is returned for a section whose CRC_32 does not verify.
var ErrCRC = errors.New("mpegts: CRC32 mismatch")

// MPEG-2 CRC32, polynomial 0x04C11DB7, no reflection.
var crcTable [256]uint32

func init() {
	for i := range crcTable {
		crc := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
		crcTable[i] = crc
	}
}

// CRC32 computes the MPEG-2 CRC of data. Over a complete section, trailing
// CRC_32 included, the result is zero.
func CRC32(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>24)^b]
	}
	return crc
}

func verifyCRC(section []byte) error {
	if len(section) < 4 || CRC32(section) != 0 {
		return ErrCRC
	}
	return nil
}
