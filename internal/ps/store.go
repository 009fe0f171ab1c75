package ps

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/karrick/godirwalk"
	"github.com/teris-io/shortid"

	"github.com/ncache/ncache/internal/cmn"
)

// Store is the on-disk persistence store of spec.md §4.3: a directory
// rooted at Root, sharded 16×16 by the top two hex bytes of the entry
// hash.
type Store struct {
	Root string

	sid *shortid.Shortid
	mu  sync.Mutex // serializes shortid.Generate, which is not safe for
	               // concurrent use without external locking
}

func Open(root string) (*Store, error) {
	sid, err := shortid.New(1, shortid.DefaultABC, 2342)
	if err != nil {
		return nil, fmt.Errorf("ps: shortid init: %w", err)
	}
	s := &Store{Root: root, sid: sid}
	if root != "" {
		if err := s.Mkdir(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Mkdir creates the root and all 256 shard subdirectories if missing;
// failure here is fatal at init (spec.md §4.3, §6 "Exit codes").
func (s *Store) Mkdir() error {
	for hi := 0; hi < 16; hi++ {
		for lo := 0; lo < 16; lo++ {
			dir := filepath.Join(s.Root, hex1(hi), hex1(lo))
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("ps: mkdir %s: %w", dir, err)
			}
		}
	}
	return nil
}

func hex1(nibble int) string { return fmt.Sprintf("%x", nibble) }

// shardDirFor returns the two-level shard directory for idx in [0,256),
// encoding idx as (idx>>4, idx&15) hex bytes (spec.md §9: "encode index
// as (idx>>4, idx&15) hex bytes").
func (s *Store) shardDirFor(idx int) string {
	return filepath.Join(s.Root, hex1((idx>>4)&0xF), hex1(idx&0xF))
}

// PathFor builds the entry filename <root>/<xx>/<yy>/<hashhex>-<uniq>
// for a given hash (spec.md §4.3).
func (s *Store) PathFor(hash uint64) (string, error) {
	s.mu.Lock()
	uniq, err := s.sid.Generate()
	s.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("ps: generate suffix: %w", err)
	}
	hi := int((hash >> 60) & 0xF)
	lo := int((hash >> 56) & 0xF)
	dir := filepath.Join(s.Root, hex1(hi), hex1(lo))
	name := fmt.Sprintf("%016x-%s", hash, uniq)
	return filepath.Join(dir, name), nil
}

// Create opens (creating if absent) the file at path for read/write,
// matching nst_persist_create's O_CREAT|O_RDWR.
func (s *Store) Create(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ps: create %s: %w", path, err)
	}
	return f, nil
}

// OpenForRead opens path O_RDONLY.
func (s *Store) OpenForRead(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Write appends bytes to fd; used for header info words, keys, element
// bytes, and payload (spec.md §4.3).
func (s *Store) Write(f *os.File, b []byte) error {
	_, err := f.Write(b)
	return err
}

// GetMeta reads and decodes the META header at offset 0.
func (s *Store) GetMeta(f *os.File) (*Meta, error) {
	buf := make([]byte, WireSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, cmn.Errorf(cmn.ErrDiskCorruption, "read meta: %v", err)
	}
	m, err := Decode(buf)
	if err != nil {
		return nil, cmn.Errorf(cmn.ErrDiskCorruption, "%v", err)
	}
	return m, nil
}

// GetKey reads the key bytes following META, using KeyLen from meta.
func (s *Store) GetKey(f *os.File, meta *Meta) ([]byte, error) {
	buf := make([]byte, meta.KeyLen)
	if _, err := f.ReadAt(buf, int64(WireSize)); err != nil {
		return nil, cmn.Errorf(cmn.ErrDiskCorruption, "read key: %v", err)
	}
	return buf, nil
}

// Valid opens path, verifies magic/version/hash, the key bytes, and
// expiry, per spec.md §4.3 PS.valid. now is the caller's clock so tests
// can simulate TTL expiry without sleeping.
func (s *Store) Valid(path string, key []byte, hash uint64, nowMS int64) error {
	f, err := s.OpenForRead(path)
	if err != nil {
		return cmn.Errorf(cmn.ErrNotFound, "open %s: %v", path, err)
	}
	defer f.Close()

	meta, err := s.GetMeta(f)
	if err != nil {
		return err
	}
	if meta.Hash != hash {
		return cmn.Errorf(cmn.ErrDiskCorruption, "hash mismatch")
	}
	got, err := s.GetKey(f, meta)
	if err != nil {
		return err
	}
	if string(got) != string(key) {
		return cmn.Errorf(cmn.ErrDiskCorruption, "key mismatch")
	}
	if meta.ExpireMS != 0 && nowMS >= meta.ExpireMS {
		return cmn.Errorf(cmn.ErrNotFound, "expired")
	}
	return nil
}

// ShardCount is the fixed 16×16 layout of spec.md §4.3/§4.5.
const ShardCount = 16 * 16

// OpendirShard lists filenames directly under shard idx (spec.md §4.3
// opendir_shard/dir_next), using godirwalk's fast readdir instead of
// os.ReadDir, matching the teacher's own preference for godirwalk over
// mountpaths in its dependency graph.
func (s *Store) OpendirShard(idx int) ([]string, error) {
	dir := s.shardDirFor(idx)
	names, err := godirwalk.ReadDirnames(dir, nil)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	out := names[:0:0]
	for _, n := range names {
		if n == "." || n == ".." {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// Cleanup unlinks one shard entry (spec.md §4.3 PS.cleanup).
func (s *Store) Cleanup(idx int, name string) error {
	return os.Remove(filepath.Join(s.shardDirFor(idx), name))
}

// FullPath joins a shard index and filename into an absolute path.
func (s *Store) FullPath(idx int, name string) string {
	return filepath.Join(s.shardDirFor(idx), name)
}

// ShardIndexOf returns the shard index (0..255) a hash's file lives
// under, the inverse of the top-byte sharding rule in PathFor.
func ShardIndexOf(hash uint64) int {
	return int((hash >> 56) & 0xFF)
}
