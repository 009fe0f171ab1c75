package ps

import (
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	"github.com/klauspost/reedsolomon"
)

// Erasure encodes/reconstructs on-disk payload shards for rules with
// Redundancy > 0 (spec.md §9 REDESIGN FLAGS: "single-host redundancy,
// not cross-target replication"). Data shards equal Redundancy; parity
// shard count is fixed at 1, giving tolerance for one corrupted or
// missing shard file without involving any other host.
type Erasure struct {
	dataShards   int
	parityShards int
	enc          reedsolomon.Encoder
}

// NewErasure builds an encoder for the given data-shard count (SPEC_FULL.md
// §4.8 accepts redundancy ∈ {0,2,3}; 0 means erasure coding is off and
// callers should not construct an Erasure at all).
func NewErasure(dataShards int) (*Erasure, error) {
	if dataShards != 2 && dataShards != 3 {
		return nil, fmt.Errorf("ps: unsupported redundancy %d", dataShards)
	}
	enc, err := reedsolomon.New(dataShards, 1)
	if err != nil {
		return nil, fmt.Errorf("ps: reedsolomon init: %w", err)
	}
	return &Erasure{dataShards: dataShards, parityShards: 1, enc: enc}, nil
}

// ShardSuffixes returns the filename suffixes used for each shard file,
// e.g. ".ec0", ".ec1", ... the last being the parity shard.
func (e *Erasure) ShardSuffixes() []string {
	out := make([]string, e.dataShards+e.parityShards)
	for i := range out {
		out[i] = fmt.Sprintf(".ec%d", i)
	}
	return out
}

// sizeSuffix names the sidecar recording the original encoded payload
// length, written alongside the shard files: the shards themselves are
// zero-padded to a common length, so the exact payload size has to
// survive independently of the (possibly missing) primary entry file
// for Reconstruct to know where to truncate.
const sizeSuffix = ".ecsize"

// IsShardFile reports whether name is a redundancy shard or its size
// sidecar rather than a primary entry file, so a directory walk over a
// shard dir (internal/hk's disk cleaner/loader) can skip them instead
// of mistaking them for orphaned or loadable entry records. Primary
// entry filenames are "<hashhex>-<uniq>" and never contain ".ec".
func IsShardFile(name string) bool {
	return strings.Contains(name, ".ec")
}

// allShardSuffixes lists every suffix across supported redundancy
// levels (2 or 3 data shards, 1 parity, plus the size sidecar), so
// cleanup can remove a file's shards without knowing which redundancy
// level, if any, it was originally written with.
func allShardSuffixes() []string {
	return []string{".ec0", ".ec1", ".ec2", ".ec3", sizeSuffix}
}

// RemoveAnyShards deletes every possible shard/sidecar file for
// basePath regardless of redundancy level, used by the housekeeper's
// disk cleaner right after it unlinks the primary entry file.
func RemoveAnyShards(basePath string) {
	for _, suf := range allShardSuffixes() {
		_ = os.Remove(basePath + suf)
	}
}

// Split partitions payload into dataShards equal-length data shards
// (zero-padded to a common length) and computes the parity shard.
func (e *Erasure) Split(payload []byte) ([][]byte, error) {
	shards, err := e.enc.Split(payload)
	if err != nil {
		return nil, fmt.Errorf("ps: split: %w", err)
	}
	if err := e.enc.Encode(shards); err != nil {
		return nil, fmt.Errorf("ps: encode: %w", err)
	}
	return shards, nil
}

// WriteShards writes each shard to "<basePath><suffix>" alongside the
// entry's own file, on the same host (SPEC_FULL.md §4.8: redundancy shards
// live next to the entry file, never on another target), plus a size
// sidecar recording the unpadded payload length for Reconstruct.
func (e *Erasure) WriteShards(basePath string, shards [][]byte, size int) error {
	suffixes := e.ShardSuffixes()
	for i, shard := range shards {
		if err := os.WriteFile(basePath+suffixes[i], shard, 0o644); err != nil {
			return fmt.Errorf("ps: write shard %d: %w", i, err)
		}
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(size))
	if err := os.WriteFile(basePath+sizeSuffix, buf[:], 0o644); err != nil {
		return fmt.Errorf("ps: write shard size: %w", err)
	}
	return nil
}

// Reconstruct reads whatever shard files exist at basePath, fills gaps
// for missing or corrupt (io error) shards, and returns the decoded
// payload truncated to its original length (recovered from the size
// sidecar WriteShards wrote). Used by PS reads when the primary entry
// file fails its Valid() check but redundancy shards exist.
func (e *Erasure) Reconstruct(basePath string) ([]byte, error) {
	sizeBuf, err := os.ReadFile(basePath + sizeSuffix)
	if err != nil || len(sizeBuf) < 8 {
		return nil, fmt.Errorf("ps: missing shard size sidecar for %s", basePath)
	}
	size := int(binary.LittleEndian.Uint64(sizeBuf))

	suffixes := e.ShardSuffixes()
	shards := make([][]byte, len(suffixes))
	present := 0
	for i, suf := range suffixes {
		b, err := os.ReadFile(basePath + suf)
		if err != nil {
			shards[i] = nil
			continue
		}
		shards[i] = b
		present++
	}
	if present < e.dataShards {
		return nil, fmt.Errorf("ps: only %d/%d shards present, cannot reconstruct", present, e.dataShards)
	}
	if err := e.enc.Reconstruct(shards); err != nil {
		return nil, fmt.Errorf("ps: reconstruct: %w", err)
	}
	out := make([]byte, 0, size)
	for i := 0; i < e.dataShards && len(out) < size; i++ {
		out = append(out, shards[i]...)
	}
	if len(out) > size {
		out = out[:size]
	}
	return out, nil
}
