// Package snapshot serializes a complete model.ShardSet to a single file.
//
// Layout, little endian:
//
//	header  [magic "AETHSNP1":8][version:4][compression:1][pad:3]
//	        [shards:4][dimension:4][lsn:8][bodyLen:8][rawLen:8]
//	body    bodyLen bytes, compressed with the header's algorithm
//	trailer [CRC32C:4] over the header and the uncompressed body
//
// The uncompressed body holds one section per shard, in shard order:
//
//	[sectionLen:8][count:4] then count × [idLen:4][id][dimension × float32]
//
// Records within a section are sorted by ID, so the same ShardSet always
// encodes to the same bytes. Sections are encoded and decoded in parallel.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/aether/internal/fs"
	"github.com/hupe1980/aether/internal/hash"
	"github.com/hupe1980/aether/model"
)

const (
	magic      = "AETHSNP1"
	version    = 1
	headerSize = 48

	maxShards = 1 << 16
	maxRawLen = 1 << 36
)

var (
	// ErrCorrupt is wrapped by every error caused by unreadable content.
	ErrCorrupt = errors.New("snapshot: corrupt")

	ErrInvalidMagic       = fmt.Errorf("%w: invalid magic", ErrCorrupt)
	ErrUnsupportedVersion = errors.New("snapshot: unsupported version")
	ErrChecksum           = fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
)

// Header describes a snapshot without its records.
type Header struct {
	Version     uint32
	Compression Compression
	ShardCount  int
	Dimension   int
	LSN         uint64
	BodyLen     uint64
	RawLen      uint64
}

func (h *Header) appendBinary(dst []byte) []byte {
	dst = append(dst, magic...)
	dst = binary.LittleEndian.AppendUint32(dst, h.Version)
	dst = append(dst, byte(h.Compression), 0, 0, 0)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(h.ShardCount))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(h.Dimension))
	dst = binary.LittleEndian.AppendUint64(dst, h.LSN)
	dst = binary.LittleEndian.AppendUint64(dst, h.BodyLen)
	dst = binary.LittleEndian.AppendUint64(dst, h.RawLen)
	return dst
}

func parseHeader(b []byte) (*Header, error) {
	if len(b) < headerSize {
		return nil, fmt.Errorf("%w: short header", ErrCorrupt)
	}
	if string(b[:8]) != magic {
		return nil, ErrInvalidMagic
	}
	h := &Header{
		Version:     binary.LittleEndian.Uint32(b[8:]),
		Compression: Compression(b[12]),
		ShardCount:  int(binary.LittleEndian.Uint32(b[16:])),
		Dimension:   int(binary.LittleEndian.Uint32(b[20:])),
		LSN:         binary.LittleEndian.Uint64(b[24:]),
		BodyLen:     binary.LittleEndian.Uint64(b[32:]),
		RawLen:      binary.LittleEndian.Uint64(b[40:]),
	}
	if h.Version != version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	if h.ShardCount <= 0 || h.ShardCount > maxShards {
		return nil, fmt.Errorf("%w: shard count %d", ErrCorrupt, h.ShardCount)
	}
	if h.Compression > CompressionZstd {
		return nil, fmt.Errorf("%w: compression %d", ErrCorrupt, h.Compression)
	}
	if h.RawLen > maxRawLen {
		return nil, fmt.Errorf("%w: body length %d", ErrCorrupt, h.RawLen)
	}
	return h, nil
}

// Encode writes set to w.
func Encode(w io.Writer, set *model.ShardSet, c Compression) error {
	if len(set.Shards) == 0 || len(set.Shards) > maxShards {
		return fmt.Errorf("snapshot: invalid shard count %d", len(set.Shards))
	}

	sections := make([][]byte, len(set.Shards))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range set.Shards {
		g.Go(func() error {
			b, err := encodeSection(set, i)
			sections[i] = b
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	raw := bytes.Join(sections, nil)
	body, used, err := compress(raw, c)
	if err != nil {
		return fmt.Errorf("snapshot: compress: %w", err)
	}

	h := Header{
		Version:     version,
		Compression: used,
		ShardCount:  len(set.Shards),
		Dimension:   set.Dimension,
		LSN:         set.LSN,
		BodyLen:     uint64(len(body)),
		RawLen:      uint64(len(raw)),
	}
	header := h.appendBinary(make([]byte, 0, headerSize))
	crc := hash.UpdateCRC32C(hash.CRC32C(header), raw)

	if _, err := w.Write(header); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	_, err = w.Write(binary.LittleEndian.AppendUint32(nil, crc))
	return err
}

func encodeSection(set *model.ShardSet, i int) ([]byte, error) {
	shard := set.Shards[i]
	ids := set.SortedIDs(i)

	size := 8 + 4
	for _, id := range ids {
		size += 4 + len(id) + 4*set.Dimension
	}

	b := make([]byte, 0, size)
	b = binary.LittleEndian.AppendUint64(b, uint64(size-8))
	b = binary.LittleEndian.AppendUint32(b, uint32(len(ids)))
	for _, id := range ids {
		vec := shard[id]
		if len(vec) != set.Dimension {
			return nil, fmt.Errorf("snapshot: shard %d id %s: dimension %d, expected %d", i, id, len(vec), set.Dimension)
		}
		b = binary.LittleEndian.AppendUint32(b, uint32(len(id)))
		b = append(b, id...)
		for _, v := range vec {
			b = binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
		}
	}
	return b, nil
}

// Decode reads a snapshot written by Encode.
func Decode(r io.Reader) (*model.ShardSet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}

// Unmarshal decodes a snapshot held in memory.
func Unmarshal(data []byte) (*model.ShardSet, error) {
	h, err := parseHeader(data)
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) != headerSize+h.BodyLen+4 {
		return nil, fmt.Errorf("%w: size %d does not match header", ErrCorrupt, len(data))
	}

	body := data[headerSize : headerSize+h.BodyLen]
	raw, err := decompress(body, h.Compression, int(h.RawLen))
	if err != nil {
		return nil, fmt.Errorf("%w: decompress: %w", ErrCorrupt, err)
	}
	if uint64(len(raw)) != h.RawLen {
		return nil, fmt.Errorf("%w: body length %d, expected %d", ErrCorrupt, len(raw), h.RawLen)
	}

	want := binary.LittleEndian.Uint32(data[len(data)-4:])
	if hash.UpdateCRC32C(hash.CRC32C(data[:headerSize]), raw) != want {
		return nil, ErrChecksum
	}

	// Split sections sequentially, then decode them in parallel.
	sections := make([][]byte, h.ShardCount)
	rest := raw
	for i := range sections {
		if len(rest) < 8 {
			return nil, fmt.Errorf("%w: section %d truncated", ErrCorrupt, i)
		}
		n := binary.LittleEndian.Uint64(rest)
		rest = rest[8:]
		if n > uint64(len(rest)) {
			return nil, fmt.Errorf("%w: section %d truncated", ErrCorrupt, i)
		}
		sections[i] = rest[:n]
		rest = rest[n:]
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(rest))
	}

	set := &model.ShardSet{
		Dimension: h.Dimension,
		LSN:       h.LSN,
		Shards:    make([]model.Shard, h.ShardCount),
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, sec := range sections {
		g.Go(func() error {
			shard, err := decodeSection(sec, h.Dimension)
			if err != nil {
				return fmt.Errorf("%w: section %d: %w", ErrCorrupt, i, err)
			}
			set.Shards[i] = shard
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return set, nil
}

var errShort = errors.New("short section")

func decodeSection(b []byte, dim int) (model.Shard, error) {
	if len(b) < 4 {
		return nil, errShort
	}
	count := int(binary.LittleEndian.Uint32(b))
	b = b[4:]

	// Every record needs at least its length prefix.
	if count > len(b)/4 {
		return nil, errShort
	}
	shard := make(model.Shard, count)
	for range count {
		if len(b) < 4 {
			return nil, errShort
		}
		idLen := int(binary.LittleEndian.Uint32(b))
		b = b[4:]
		if len(b) < idLen+4*dim {
			return nil, errShort
		}
		id := string(b[:idLen])
		b = b[idLen:]

		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*j:]))
		}
		b = b[4*dim:]

		if _, dup := shard[id]; dup {
			return nil, fmt.Errorf("duplicate id %s", id)
		}
		shard[id] = vec
	}
	if len(b) != 0 {
		return nil, fmt.Errorf("%d trailing bytes", len(b))
	}
	return shard, nil
}

// WriteFile atomically replaces path with the encoded snapshot.
func WriteFile(fsys fs.FileSystem, path string, set *model.ShardSet, c Compression) error {
	return fs.WriteFileAtomic(fsys, path, func(w io.Writer) error {
		return Encode(w, set, c)
	})
}

// ReadFile loads the snapshot at path. A missing file returns an error
// satisfying errors.Is(err, os.ErrNotExist).
func ReadFile(fsys fs.FileSystem, path string) (*model.ShardSet, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}

// ReadHeader returns the header of the snapshot in r without decoding the
// records.
func ReadHeader(r io.Reader) (*Header, error) {
	b := make([]byte, headerSize)
	if _, err := io.ReadFull(r, b); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: short header", ErrCorrupt)
		}
		return nil, err
	}
	return parseHeader(b)
}
