// Package mes implements the Message Element Store (spec.md §2.1, §3):
// a singly-linked chain of opaque HTTP message blocks, each tagged with
// a packed type/length info word exactly as the host proxy and the
// on-disk format require.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package mes

// Type is the HTX-style block type, packed into the high 4 bits of Info.
// Kept identical to the source's enum ordering (engine.c /
// _nst_nosql_element_to_htx) since it doubles as the on-disk tag.
type Type uint32

const (
	TypeStatusLine Type = iota
	TypeHeader
	TypeEndOfHeaders
	TypeData
	TypeTrailer
	TypeEndOfMessage
)

// Info bit layout (spec.md §3, preserved per REDESIGN FLAGS §9):
//
//	bits 31..28 : type (4 bits)
//	bits 27..0  : length (28 bits) for status-line/EOH/data/EOM
//
// For TypeHeader/TypeTrailer the low 28 bits split further:
//
//	bits 27..8 : value length (20 bits)
//	bits 7..0  : name length  (8 bits)
const (
	typeShift   = 28
	typeMask    = 0xF
	lenMask28   = 0x0FFFFFFF
	nameShift   = 20
	nameMask8   = 0xFF
	valueMask20 = 0xFFFFF
)

// PackSimple builds an info word for status-line/EOH/data/EOM blocks.
func PackSimple(t Type, length uint32) uint32 {
	return (uint32(t) << typeShift) | (length & lenMask28)
}

// PackHeader builds an info word for header/trailer blocks, where the
// 28-bit length field is itself split into name length and value length.
func PackHeader(t Type, nameLen, valueLen uint32) uint32 {
	lo := (nameLen & nameMask8) | ((valueLen & valueMask20) << 8)
	return (uint32(t) << typeShift) | (lo & lenMask28)
}

func UnpackType(info uint32) Type { return Type((info >> typeShift) & typeMask) }

// UnpackLen returns the block's total byte length, correctly splitting
// header/trailer blocks whose 28-bit field is name:8|value:20 rather
// than a flat length.
func UnpackLen(info uint32) uint32 {
	t := UnpackType(info)
	if t == TypeHeader || t == TypeTrailer {
		nameLen := info & nameMask8
		valueLen := (info >> 8) & valueMask20
		return nameLen + valueLen
	}
	return info & lenMask28
}

// UnpackHeaderLens splits a header/trailer info word into name and value
// lengths. Callers must only call this when UnpackType is Header/Trailer.
func UnpackHeaderLens(info uint32) (nameLen, valueLen uint32) {
	return info & nameMask8, (info >> 8) & valueMask20
}

// Element is one HTTP message block in the stored chain (spec.md §3).
type Element struct {
	Info uint32
	Data []byte
	Next *Element
}

func (e *Element) Type() Type { return UnpackType(e.Info) }

// Len returns the number of payload bytes this element's Info claims;
// callers use it to validate len(Data) when reading blocks back from
// disk, where only the 4-byte info word plus raw bytes are stored.
func (e *Element) Len() uint32 { return UnpackLen(e.Info) }

// NewStatusLine builds a status-line element.
func NewStatusLine(data []byte) *Element {
	return &Element{Info: PackSimple(TypeStatusLine, uint32(len(data))), Data: data}
}

// NewHeader builds a header element from "name" and "value" concatenated
// verbatim in data, matching the source's ist2bin_lc + memcpy layout.
func NewHeader(name, value string) *Element {
	data := make([]byte, 0, len(name)+len(value))
	data = append(data, name...)
	data = append(data, value...)
	return &Element{Info: PackHeader(TypeHeader, uint32(len(name)), uint32(len(value))), Data: data}
}

func NewEndOfHeaders() *Element {
	return &Element{Info: PackSimple(TypeEndOfHeaders, 0), Data: nil}
}

func NewData(data []byte) *Element {
	return &Element{Info: PackSimple(TypeData, uint32(len(data))), Data: data}
}

func NewEndOfMessage() *Element {
	return &Element{Info: PackSimple(TypeEndOfMessage, 0), Data: nil}
}

// HeaderParts splits a header/trailer element's Data back into name and
// value, the inverse of NewHeader.
func (e *Element) HeaderParts() (name, value string) {
	nameLen, valueLen := UnpackHeaderLens(e.Info)
	n := int(nameLen)
	v := int(valueLen)
	if n+v > len(e.Data) {
		return "", ""
	}
	return string(e.Data[:n]), string(e.Data[n : n+v])
}
