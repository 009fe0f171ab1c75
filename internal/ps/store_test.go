package ps

import (
	"os"
	"testing"
)

func TestOpenCreatesAllShards(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := os.Stat(s.shardDirFor(0)); err != nil {
		t.Fatalf("shard 0 missing: %v", err)
	}
	if _, err := os.Stat(s.shardDirFor(ShardCount - 1)); err != nil {
		t.Fatalf("last shard missing: %v", err)
	}
}

func TestPathForLandsInDerivedShard(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	hash := uint64(0xAB << 56)
	path, err := s.PathFor(hash)
	if err != nil {
		t.Fatalf("PathFor: %v", err)
	}
	if _, err := os.Stat(path); err == nil {
		t.Fatal("PathFor should not create the file itself")
	}
	want := s.shardDirFor(0xAB)
	if got := path[:len(want)]; got != want {
		t.Fatalf("path %q not under expected shard dir %q", path, want)
	}
}

func TestCreateWriteAndValid(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	key := []byte("the-key")
	hash := uint64(123456789)
	path, err := s.PathFor(hash)
	if err != nil {
		t.Fatalf("PathFor: %v", err)
	}
	f, err := s.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	meta := &Meta{Hash: hash, KeyLen: uint32(len(key)), CacheLen: 3}
	if err := s.Write(f, meta.Encode()); err != nil {
		t.Fatalf("write meta: %v", err)
	}
	if err := s.Write(f, key); err != nil {
		t.Fatalf("write key: %v", err)
	}
	if err := s.Write(f, []byte("abc")); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	f.Close()

	if err := s.Valid(path, key, hash, 0); err != nil {
		t.Fatalf("Valid: %v", err)
	}
	if err := s.Valid(path, []byte("wrong-key"), hash, 0); err == nil {
		t.Fatal("expected Valid to reject a key mismatch")
	}
	if err := s.Valid(path, key, hash+1, 0); err == nil {
		t.Fatal("expected Valid to reject a hash mismatch")
	}
}

func TestValidRejectsExpiredEntry(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	key := []byte("k")
	hash := uint64(1)
	path, _ := s.PathFor(hash)
	f, _ := s.Create(path)
	meta := &Meta{Hash: hash, KeyLen: uint32(len(key)), ExpireMS: 1000}
	s.Write(f, meta.Encode())
	s.Write(f, key)
	f.Close()

	if err := s.Valid(path, key, hash, 2000); err == nil {
		t.Fatal("expected Valid to reject an expired entry")
	}
}

func TestOpendirShardAndCleanup(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	hash := uint64(5) << 56
	path, _ := s.PathFor(hash)
	f, _ := s.Create(path)
	f.Close()

	idx := ShardIndexOf(hash)
	names, err := s.OpendirShard(idx)
	if err != nil {
		t.Fatalf("OpendirShard: %v", err)
	}
	if len(names) != 1 {
		t.Fatalf("len(names) = %d, want 1", len(names))
	}
	if err := s.Cleanup(idx, names[0]); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected file to be removed after Cleanup")
	}
}
