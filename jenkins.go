package main

import (
	"encoding/binary"
	"math/bits"
)

// Jenkins96 hashes an archive path the way the game client does: ASCII upper
// case with backslash separators, run through lookup3 hashlittle2, packed as
// (c << 32) | b.
func Jenkins96(path string) uint64 {
	// one byte per rune; anything outside ASCII becomes a single '?'
	data := make([]byte, 0, len(path))
	for _, r := range path {
		switch {
		case r == '/':
			r = '\\'
		case r >= 'a' && r <= 'z':
			r -= 'a' - 'A'
		case r >= 0x80:
			r = '?'
		}
		data = append(data, byte(r))
	}

	c, b := hashlittle2(data, 0, 0)
	return uint64(c)<<32 | uint64(b)
}

// hashlittle2 is Bob Jenkins' lookup3 hash returning both 32-bit results.
func hashlittle2(data []byte, pc, pb uint32) (uint32, uint32) {
	length := len(data)
	a := 0xdeadbeef + uint32(length) + pc
	b, c := a, a+pb

	if length == 0 {
		return c, b
	}

	// the tail is zero padded to a whole 12 byte block
	padded := data
	if rem := length % 12; rem != 0 {
		padded = make([]byte, length+12-rem)
		copy(padded, data)
	}

	for len(padded) > 12 {
		a += binary.LittleEndian.Uint32(padded[0:])
		b += binary.LittleEndian.Uint32(padded[4:])
		c += binary.LittleEndian.Uint32(padded[8:])
		a, b, c = mix(a, b, c)
		padded = padded[12:]
	}

	a += binary.LittleEndian.Uint32(padded[0:])
	b += binary.LittleEndian.Uint32(padded[4:])
	c += binary.LittleEndian.Uint32(padded[8:])
	a, b, c = final(a, b, c)

	return c, b
}

func mix(a, b, c uint32) (uint32, uint32, uint32) {
	a -= c
	a ^= bits.RotateLeft32(c, 4)
	c += b
	b -= a
	b ^= bits.RotateLeft32(a, 6)
	a += c
	c -= b
	c ^= bits.RotateLeft32(b, 8)
	b += a
	a -= c
	a ^= bits.RotateLeft32(c, 16)
	c += b
	b -= a
	b ^= bits.RotateLeft32(a, 19)
	a += c
	c -= b
	c ^= bits.RotateLeft32(b, 4)
	b += a
	return a, b, c
}

func final(a, b, c uint32) (uint32, uint32, uint32) {
	c ^= b
	c -= bits.RotateLeft32(b, 14)
	a ^= c
	a -= bits.RotateLeft32(c, 11)
	b ^= a
	b -= bits.RotateLeft32(a, 25)
	c ^= b
	c -= bits.RotateLeft32(b, 16)
	a ^= c
	a -= bits.RotateLeft32(c, 4)
	b ^= a
	b -= bits.RotateLeft32(a, 14)
	c ^= b
	c -= bits.RotateLeft32(b, 24)
	return a, b, c
}
