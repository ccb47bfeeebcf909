package crypto

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// EIP55 computes the checksummed hex address string from a 20-byte raw address.
func EIP55(addr20 []byte) string {
	lower := hex.EncodeToString(addr20)
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	hash := h.Sum(nil)

	out := make([]byte, 2+len(lower))
	copy(out, "0x")
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		// nibble i of the hash decides the case of hex char i
		nibble := hash[i/2] >> 4
		if i%2 == 1 {
			nibble = hash[i/2] & 0x0f
		}
		if c >= 'a' && nibble >= 8 {
			c -= 'a' - 'A'
		}
		out[2+i] = c
	}
	return string(out)
}
