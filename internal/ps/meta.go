// Package ps implements the Persistence Store (spec.md §2.4, §4.3): the
// on-disk record format and the directory-sharded layout backing it.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package ps

import (
	"encoding/binary"
	"fmt"
)

// Magic/version gate forward/backward compatibility (spec.md §6): a
// mismatched version makes Decode fail, so the file is treated as
// invalid like any other disk corruption. Readers do not unlink it on
// access: an engine read reports a miss and the disk loader skips it;
// the file is removed by the housekeeper's disk cleaner, which unlinks
// files that no live dict entry refers to.
const (
	metaMagic   uint32 = 0x4e535443 // "NSTC"
	metaVersion uint32 = 1

	// MetaSize is NST_PERSIST_META_SIZE: the fixed byte length of the
	// META header at offset 0 of every entry file (spec.md §4.3).
	MetaSize = 4 + 4 + 1 + 8 + 8 + 4 + 4 + 8 + 4 // = 45, no padding
)

// DiskMode mirrors config.DiskMode's integer values without importing
// the config package, to keep ps free of a dependency on rule parsing.
type DiskMode byte

// Meta is the fixed-size binary header at the start of each on-disk
// entry file (spec.md §4.3 "META fields"). Encode/Decode use explicit
// little-endian layout per spec.md §9 ("keep this binary layout...
// encode with explicit bit fields and document the split").
type Meta struct {
	Mode      DiskMode
	Hash      uint64
	ExpireMS  int64
	HeaderLen uint32
	KeyLen    uint32
	CacheLen  uint64
	Reserved  uint32
}

// metaWireSize is the encoded size spelled out field by field; it
// equals MetaSize. Callers use it through WireSize.
const metaWireSize = 4 /*magic*/ + 4 /*version*/ + 1 /*mode*/ + 8 /*hash*/ +
	8 /*expire*/ + 4 /*header_len*/ + 4 /*key_len*/ + 8 /*cache_len*/ + 4 /*reserved*/

func init() {
	if metaWireSize > 64 {
		panic("ps: meta wire size grew unexpectedly")
	}
}

// WireSize is the number of bytes Encode writes / Decode reads.
const WireSize = metaWireSize

func (m *Meta) Encode() []byte {
	buf := make([]byte, WireSize)
	binary.LittleEndian.PutUint32(buf[0:4], metaMagic)
	binary.LittleEndian.PutUint32(buf[4:8], metaVersion)
	buf[8] = byte(m.Mode)
	binary.LittleEndian.PutUint64(buf[9:17], m.Hash)
	binary.LittleEndian.PutUint64(buf[17:25], uint64(m.ExpireMS))
	binary.LittleEndian.PutUint32(buf[25:29], m.HeaderLen)
	binary.LittleEndian.PutUint32(buf[29:33], m.KeyLen)
	binary.LittleEndian.PutUint64(buf[33:41], m.CacheLen)
	binary.LittleEndian.PutUint32(buf[41:45], m.Reserved)
	return buf
}

// Decode parses a META header, rejecting a magic/version mismatch
// (Store.GetMeta wraps the error as DiskCorruption; callers treat the
// record as a miss and do not unlink it).
func Decode(buf []byte) (*Meta, error) {
	if len(buf) < WireSize {
		return nil, fmt.Errorf("ps: meta buffer too short (%d < %d)", len(buf), WireSize)
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	version := binary.LittleEndian.Uint32(buf[4:8])
	if magic != metaMagic {
		return nil, fmt.Errorf("ps: bad magic %#x", magic)
	}
	if version != metaVersion {
		return nil, fmt.Errorf("ps: unsupported version %d", version)
	}
	m := &Meta{
		Mode:      DiskMode(buf[8]),
		Hash:      binary.LittleEndian.Uint64(buf[9:17]),
		ExpireMS:  int64(binary.LittleEndian.Uint64(buf[17:25])),
		HeaderLen: binary.LittleEndian.Uint32(buf[25:29]),
		KeyLen:    binary.LittleEndian.Uint32(buf[29:33]),
		CacheLen:  binary.LittleEndian.Uint64(buf[33:41]),
		Reserved:  binary.LittleEndian.Uint32(buf[41:45]),
	}
	return m, nil
}
