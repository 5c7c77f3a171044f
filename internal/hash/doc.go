// Package hash provides the two hashes Aether depends on.
//
// # Integrity: CRC32-Castagnoli
//
// WAL records and snapshot bodies are protected with CRC32C, which is
// hardware accelerated on x86 (SSE4.2) and ARM64 (CRC extension):
//
//	checksum := hash.CRC32C(data)
//
//	h := hash.NewCRC32C()
//	h.Write(chunk1)
//	h.Write(chunk2)
//	checksum := h.Sum32()
//
// CRC32C detects accidental corruption only. It is not a tamper check.
//
// # Placement: SHA-256
//
// Shard placement hashes the UTF-8 bytes of an ID with SHA-256 and reads the
// digest as an unsigned big-endian integer. Mod reduces that integer modulo
// the shard count, so placement is a pure function of (id, n):
//
//	shard := hash.Mod("3f2b...", 4)
package hash
