// Package chunkstore provides the decoded chunk model, an LRU cache of
// decoded chunks, and a loader that fetches chunks from a blob store
// with request coalescing and a retry policy.
package chunkstore

import (
	"bytes"
	"encoding/binary"

	"github.com/liliang-cn/hybridann"
)

// ChunkEntry pairs an id with its vector inside a chunk.
type ChunkEntry struct {
	ID     hybridann.VectorID
	Vector []float32
}

// Chunk is a bounded, immutable group of (id, vector) entries, the unit
// persisted chunked save/load moves across the blob store.
type Chunk struct {
	ChunkID   string
	RangeLow  uint64
	RangeHigh uint64
	Entries   []ChunkEntry
}

// EncodeChunk serializes c to its compact binary form: chunk id,
// range bounds, entry count, then each entry as a 32-byte id followed
// by a length-prefixed little-endian float32 vector.
func EncodeChunk(c *Chunk) ([]byte, error) {
	buf := new(bytes.Buffer)

	idBytes := []byte(c.ChunkID)
	if err := binary.Write(buf, binary.LittleEndian, int32(len(idBytes))); err != nil {
		return nil, hybridann.WrapError("chunk.encode", err)
	}
	buf.Write(idBytes)

	if err := binary.Write(buf, binary.LittleEndian, c.RangeLow); err != nil {
		return nil, hybridann.WrapError("chunk.encode", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, c.RangeHigh); err != nil {
		return nil, hybridann.WrapError("chunk.encode", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, int32(len(c.Entries))); err != nil {
		return nil, hybridann.WrapError("chunk.encode", err)
	}

	for _, e := range c.Entries {
		buf.Write(e.ID[:])
		if err := binary.Write(buf, binary.LittleEndian, int32(len(e.Vector))); err != nil {
			return nil, hybridann.WrapError("chunk.encode", err)
		}
		for _, v := range e.Vector {
			if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
				return nil, hybridann.WrapError("chunk.encode", err)
			}
		}
	}

	return buf.Bytes(), nil
}

// DecodeChunk parses data written by EncodeChunk. A malformed buffer
// yields a wrapped hybridann.ErrCorruption rather than a panic.
func DecodeChunk(data []byte) (*Chunk, error) {
	r := bytes.NewReader(data)

	var idLen int32
	if err := binary.Read(r, binary.LittleEndian, &idLen); err != nil || idLen < 0 {
		return nil, hybridann.WrapError("chunk.decode", hybridann.ErrCorruption)
	}
	idBytes := make([]byte, idLen)
	if _, err := r.Read(idBytes); err != nil {
		return nil, hybridann.WrapError("chunk.decode", hybridann.ErrCorruption)
	}

	c := &Chunk{ChunkID: string(idBytes)}
	if err := binary.Read(r, binary.LittleEndian, &c.RangeLow); err != nil {
		return nil, hybridann.WrapError("chunk.decode", hybridann.ErrCorruption)
	}
	if err := binary.Read(r, binary.LittleEndian, &c.RangeHigh); err != nil {
		return nil, hybridann.WrapError("chunk.decode", hybridann.ErrCorruption)
	}

	var entryCount int32
	if err := binary.Read(r, binary.LittleEndian, &entryCount); err != nil || entryCount < 0 {
		return nil, hybridann.WrapError("chunk.decode", hybridann.ErrCorruption)
	}

	c.Entries = make([]ChunkEntry, entryCount)
	for i := int32(0); i < entryCount; i++ {
		var e ChunkEntry
		if _, err := r.Read(e.ID[:]); err != nil {
			return nil, hybridann.WrapError("chunk.decode", hybridann.ErrCorruption)
		}
		var vecLen int32
		if err := binary.Read(r, binary.LittleEndian, &vecLen); err != nil || vecLen < 0 {
			return nil, hybridann.WrapError("chunk.decode", hybridann.ErrCorruption)
		}
		e.Vector = make([]float32, vecLen)
		for j := int32(0); j < vecLen; j++ {
			if err := binary.Read(r, binary.LittleEndian, &e.Vector[j]); err != nil {
				return nil, hybridann.WrapError("chunk.decode", hybridann.ErrCorruption)
			}
		}
		c.Entries[i] = e
	}

	return c, nil
}
