package sketch

import "github.com/twmb/murmur3"

// HashSeed is the fixed Murmur3 seed. Changing it changes every register
// position, so estimates are only comparable between sketches using the same seed.
const HashSeed uint32 = 0x9747b28c

// Hash32 maps a value to a uniformly distributed 32-bit integer using
// Murmur3_x86_32.
func Hash32(value string) uint32 {
	return murmur3.SeedSum32(HashSeed, []byte(value))
}

func hashWithSeed(value string, seed uint32) uint32 {
	return murmur3.SeedSum32(seed, []byte(value))
}
