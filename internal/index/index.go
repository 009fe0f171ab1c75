// Package index implements the secondary disk index of SPEC_FULL.md
// §4.7: a hash-hex → {path, expire_ms} lookup table backed by
// tidwall/buntdb. The engine writes to it on persist and delete and the
// housekeeper's loader rebuilds it; no read path calls Get.
package index

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/buntdb"
)

// Index wraps a buntdb database file. An Index opened with path == ""
// has no database, and every method degrades to a no-op miss, so
// callers can run with the index disabled without branching on a bool
// everywhere.
type Index struct {
	db *buntdb.DB
}

// Record is one index entry: the on-disk path and TTL deadline for a
// cached key's hash.
type Record struct {
	Path     string
	ExpireMS int64
}

func Open(path string) (*Index, error) {
	if path == "" {
		return &Index{}, nil
	}
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}
	return &Index{db: db}, nil
}

func (x *Index) Close() error {
	if x.db == nil {
		return nil
	}
	return x.db.Close()
}

func key(hash uint64) string { return strconv.FormatUint(hash, 16) }

func encode(r Record) string { return r.Path + "\x00" + strconv.FormatInt(r.ExpireMS, 10) }

func decode(v string) (Record, error) {
	i := strings.LastIndexByte(v, '\x00')
	if i < 0 {
		return Record{}, fmt.Errorf("index: malformed value %q", v)
	}
	expire, err := strconv.ParseInt(v[i+1:], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("index: malformed expire: %w", err)
	}
	return Record{Path: v[:i], ExpireMS: expire}, nil
}

// Put records or overwrites the index entry for hash.
func (x *Index) Put(hash uint64, r Record) error {
	if x.db == nil {
		return nil
	}
	return x.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key(hash), encode(r), nil)
		return err
	})
}

// Get looks up the index entry for hash. ok is false both when the
// index is disabled and when there is no entry.
func (x *Index) Get(hash uint64) (rec Record, ok bool) {
	if x.db == nil {
		return Record{}, false
	}
	err := x.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(key(hash))
		if err != nil {
			return err
		}
		rec, err = decode(v)
		return err
	})
	return rec, err == nil
}

// Delete removes the index entry for hash, if any.
func (x *Index) Delete(hash uint64) error {
	if x.db == nil {
		return nil
	}
	return x.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(key(hash))
		if err == buntdb.ErrNotFound {
			return nil
		}
		return err
	})
}

// Rebuild clears and repopulates the index from the given entries,
// called by the housekeeper's lazy loader after a full shard walk
// (SPEC_FULL.md §4.7: "rebuilt by HK's lazy loader").
func (x *Index) Rebuild(entries map[uint64]Record) error {
	if x.db == nil {
		return nil
	}
	return x.db.Update(func(tx *buntdb.Tx) error {
		if err := tx.DeleteAll(); err != nil {
			return err
		}
		for hash, r := range entries {
			if _, _, err := tx.Set(key(hash), encode(r), nil); err != nil {
				return err
			}
		}
		return nil
	})
}
