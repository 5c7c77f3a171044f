package hash

import (
	"crypto/sha256"
	"hash/crc32"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC32C(t *testing.T) {
	data := []byte("aether write-ahead log")

	want := crc32.Checksum(data, crc32.MakeTable(crc32.Castagnoli))
	assert.Equal(t, want, CRC32C(data))

	h := NewCRC32C()
	h.Write(data[:6])
	h.Write(data[6:])
	assert.Equal(t, want, h.Sum32())

	assert.Equal(t, want, UpdateCRC32C(UpdateCRC32C(0, data[:3]), data[3:]))
}

func TestMod(t *testing.T) {
	t.Run("MatchesBigIntReference", func(t *testing.T) {
		for _, key := range []string{"", "a", "5d1e7b0e-8d4c-4f7b-9c1a-3f2e1d0c9b8a", "日本語"} {
			sum := sha256.Sum256([]byte(key))
			ref := new(big.Int).SetBytes(sum[:])
			for _, n := range []int{1, 2, 3, 7, 256} {
				want := new(big.Int).Mod(ref, big.NewInt(int64(n))).Int64()
				assert.Equal(t, int(want), Mod(key, n), "key=%q n=%d", key, n)
			}
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			assert.Equal(t, Mod("stable-key", 5), Mod("stable-key", 5))
		}
	})

	t.Run("SingleShard", func(t *testing.T) {
		assert.Equal(t, 0, Mod("anything", 1))
	})
}
