// Package listing provides the msgpack wire format for the admin key
// listing endpoint (SPEC_FULL.md §6.3), adapted from the teacher's
// cmn/objlist_gen.go (there a generated codec for bucket listings; here
// a small hand-maintained codec in the same tinylib/msgp idiom for the
// cache's own key/state/expiry summaries).
package listing

import "github.com/tinylib/msgp/msgp"

// Entry summarizes one dictionary entry for /_ncache/keys.
type Entry struct {
	Key      string `msg:"key"`
	State    string `msg:"state"`
	ExpireMS int64  `msg:"expire_ms"`
	OnDisk   bool   `msg:"on_disk"`
}

// EntryList is the top-level listing payload.
type EntryList struct {
	Entries []Entry `msg:"entries"`
}

// DecodeMsg implements msgp.Decodable.
func (z *Entry) DecodeMsg(dc *msgp.Reader) (err error) {
	var field []byte
	var n uint32
	n, err = dc.ReadMapHeader()
	if err != nil {
		return msgp.WrapError(err)
	}
	for i := uint32(0); i < n; i++ {
		field, err = dc.ReadMapKeyPtr()
		if err != nil {
			return msgp.WrapError(err)
		}
		switch string(field) {
		case "key":
			z.Key, err = dc.ReadString()
		case "state":
			z.State, err = dc.ReadString()
		case "expire_ms":
			z.ExpireMS, err = dc.ReadInt64()
		case "on_disk":
			z.OnDisk, err = dc.ReadBool()
		default:
			err = dc.Skip()
		}
		if err != nil {
			return msgp.WrapError(err, string(field))
		}
	}
	return nil
}

// EncodeMsg implements msgp.Encodable.
func (z *Entry) EncodeMsg(en *msgp.Writer) (err error) {
	if err = en.WriteMapHeader(4); err != nil {
		return msgp.WrapError(err)
	}
	if err = en.WriteString("key"); err != nil {
		return msgp.WrapError(err, "key")
	}
	if err = en.WriteString(z.Key); err != nil {
		return msgp.WrapError(err, "key")
	}
	if err = en.WriteString("state"); err != nil {
		return msgp.WrapError(err, "state")
	}
	if err = en.WriteString(z.State); err != nil {
		return msgp.WrapError(err, "state")
	}
	if err = en.WriteString("expire_ms"); err != nil {
		return msgp.WrapError(err, "expire_ms")
	}
	if err = en.WriteInt64(z.ExpireMS); err != nil {
		return msgp.WrapError(err, "expire_ms")
	}
	if err = en.WriteString("on_disk"); err != nil {
		return msgp.WrapError(err, "on_disk")
	}
	if err = en.WriteBool(z.OnDisk); err != nil {
		return msgp.WrapError(err, "on_disk")
	}
	return nil
}

// MarshalMsg appends the msgpack encoding of z to b.
func (z *Entry) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.AppendMapHeader(b, 4)
	b = msgp.AppendString(b, "key")
	b = msgp.AppendString(b, z.Key)
	b = msgp.AppendString(b, "state")
	b = msgp.AppendString(b, z.State)
	b = msgp.AppendString(b, "expire_ms")
	b = msgp.AppendInt64(b, z.ExpireMS)
	b = msgp.AppendString(b, "on_disk")
	b = msgp.AppendBool(b, z.OnDisk)
	return b, nil
}

// UnmarshalMsg decodes z from b, returning the remaining bytes.
func (z *Entry) UnmarshalMsg(b []byte) ([]byte, error) {
	n, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return b, msgp.WrapError(err)
	}
	for i := uint32(0); i < n; i++ {
		var field []byte
		field, b, err = msgp.ReadMapKeyZC(b)
		if err != nil {
			return b, msgp.WrapError(err)
		}
		switch string(field) {
		case "key":
			z.Key, b, err = msgp.ReadStringBytes(b)
		case "state":
			z.State, b, err = msgp.ReadStringBytes(b)
		case "expire_ms":
			z.ExpireMS, b, err = msgp.ReadInt64Bytes(b)
		case "on_disk":
			z.OnDisk, b, err = msgp.ReadBoolBytes(b)
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return b, msgp.WrapError(err, string(field))
		}
	}
	return b, nil
}

// Msgsize returns an upper bound on the encoded size of z.
func (z *Entry) Msgsize() int {
	return msgp.MapHeaderSize + 4*msgp.StringPrefixSize + len("key") + len("state") +
		len("expire_ms") + len("on_disk") + msgp.StringPrefixSize + len(z.Key) +
		msgp.StringPrefixSize + len(z.State) + msgp.Int64Size + msgp.BoolSize
}

// MarshalMsg appends the msgpack encoding of z to b.
func (z *EntryList) MarshalMsg(b []byte) ([]byte, error) {
	var err error
	b = msgp.AppendArrayHeader(b, uint32(len(z.Entries)))
	for i := range z.Entries {
		b, err = z.Entries[i].MarshalMsg(b)
		if err != nil {
			return b, msgp.WrapError(err, i)
		}
	}
	return b, nil
}

// UnmarshalMsg decodes z from b, returning the remaining bytes.
func (z *EntryList) UnmarshalMsg(b []byte) ([]byte, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return b, msgp.WrapError(err)
	}
	if cap(z.Entries) >= int(n) {
		z.Entries = z.Entries[:n]
	} else {
		z.Entries = make([]Entry, n)
	}
	for i := range z.Entries {
		b, err = z.Entries[i].UnmarshalMsg(b)
		if err != nil {
			return b, msgp.WrapError(err, i)
		}
	}
	return b, nil
}
