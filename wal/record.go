package wal

import (
	"encoding/binary"
	"errors"
	"io"
	"math"

	"github.com/hupe1980/aether/internal/hash"
)

// RecordType identifies the type of WAL record.
type RecordType uint8

const (
	// RecordTypeInsert stores one vector under its ID.
	RecordTypeInsert RecordType = 1
)

const (
	// [CRC32C:4][Type:1][LSN:8][Length:4]
	recordHeaderSize = 4 + 1 + 8 + 4

	maxRecordSize = 64 << 20
)

var (
	ErrInvalidCRC     = errors.New("wal: record checksum mismatch")
	ErrInvalidType    = errors.New("wal: invalid record type")
	ErrShortRead      = errors.New("wal: short record payload")
	ErrRecordTooLarge = errors.New("wal: record too large")
)

// Record is a single logged insert.
type Record struct {
	LSN    uint64
	Type   RecordType
	ID     string
	Vector []float32
}

func (r *Record) payloadSize() int {
	return 4 + len(r.ID) + 4 + 4*len(r.Vector)
}

// Size returns the encoded size of the record in bytes.
func (r *Record) Size() int {
	return recordHeaderSize + r.payloadSize()
}

// AppendBinary appends the encoded record to dst.
//
// Layout, little endian:
//
//	[CRC32C:4][Type:1][LSN:8][Length:4][IDLen:4][ID][Dim:4][Vector:Dim*4]
//
// The checksum covers everything after itself.
func (r *Record) AppendBinary(dst []byte) ([]byte, error) {
	size := r.payloadSize()
	if size > maxRecordSize {
		return dst, ErrRecordTooLarge
	}

	start := len(dst)
	dst = binary.LittleEndian.AppendUint32(dst, 0) // checksum placeholder
	dst = append(dst, byte(r.Type))
	dst = binary.LittleEndian.AppendUint64(dst, r.LSN)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(size))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(r.ID)))
	dst = append(dst, r.ID...)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(r.Vector)))
	for _, v := range r.Vector {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
	}

	binary.LittleEndian.PutUint32(dst[start:], hash.CRC32C(dst[start+4:]))
	return dst, nil
}

// Decode reads one record from r and returns it together with the number of
// bytes it occupied. A clean end of input yields io.EOF; a record cut short
// yields io.ErrUnexpectedEOF.
func Decode(r io.Reader) (*Record, int64, error) {
	var header [recordHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, 0, err
	}

	checksum := binary.LittleEndian.Uint32(header[0:])
	typ := RecordType(header[4])
	lsn := binary.LittleEndian.Uint64(header[5:])
	length := binary.LittleEndian.Uint32(header[13:])

	if length > maxRecordSize {
		return nil, recordHeaderSize, ErrRecordTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, recordHeaderSize, err
	}
	n := int64(recordHeaderSize) + int64(length)

	crc := hash.UpdateCRC32C(hash.CRC32C(header[4:]), payload)
	if crc != checksum {
		return nil, n, ErrInvalidCRC
	}
	if typ != RecordTypeInsert {
		return nil, n, ErrInvalidType
	}

	rec := &Record{Type: typ, LSN: lsn}
	if err := parseInsert(payload, rec); err != nil {
		return nil, n, err
	}
	return rec, n, nil
}

func parseInsert(p []byte, rec *Record) error {
	if len(p) < 4 {
		return ErrShortRead
	}
	idLen := int(binary.LittleEndian.Uint32(p))
	p = p[4:]
	if len(p) < idLen+4 {
		return ErrShortRead
	}
	rec.ID = string(p[:idLen])
	p = p[idLen:]

	dim := int(binary.LittleEndian.Uint32(p))
	p = p[4:]
	if len(p) != dim*4 {
		return ErrShortRead
	}
	rec.Vector = make([]float32, dim)
	for i := range rec.Vector {
		rec.Vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
	}
	return nil
}
