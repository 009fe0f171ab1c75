package engine

import (
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ncache/ncache/internal/cmn"
	"github.com/ncache/ncache/internal/config"
	"github.com/ncache/ncache/internal/data"
	"github.com/ncache/ncache/internal/dict"
	"github.com/ncache/ncache/internal/index"
	"github.com/ncache/ncache/internal/keybuild"
	"github.com/ncache/ncache/internal/mes"
	"github.com/ncache/ncache/internal/ps"
	"github.com/ncache/ncache/internal/stats"
)

// Engine binds DICT, the DO ring, the element arena, and PS together
// behind the request state machine of spec.md §4.4. It is the single
// object cmd/ncached's HTTP handlers drive.
type Engine struct {
	Cfg   *config.Config
	Dict  *dict.Dict
	Ring  *data.Ring
	Arena *mes.Arena
	Store *ps.Store
	Index *index.Index
	Stats *stats.Stats

	sf singleflight.Group

	erasureMu sync.Mutex
	erasure   map[int]*ps.Erasure // keyed by rule.Redundancy, built lazily
}

func New(cfg *config.Config) (*Engine, error) {
	st := stats.New(cfg.DictSize, cfg.DataSize)
	store, err := ps.Open(cfg.Root)
	if err != nil {
		return nil, err
	}
	idx, err := index.Open("")
	if err != nil {
		return nil, err
	}
	// One dict bucket per ~64 bytes of budget is a reasonable starting
	// point; SweepTick amortizes the true cost regardless of size.
	buckets := uint64(cfg.DictSize / 64)
	if buckets == 0 {
		buckets = 1024
	}
	return &Engine{
		Cfg:     cfg,
		Dict:    dict.New(buckets),
		Ring:    data.NewRing(),
		Arena:   mes.NewArena(st),
		Store:   store,
		Index:   idx,
		Stats:   st,
		erasure: make(map[int]*ps.Erasure),
	}, nil
}

// Result is the outcome of Lookup: the caller inspects State, and for
// StateHit/StateHitDisk reads Elements/Info.
type Result struct {
	State    State
	Elements []*mes.Element
	Info     data.Info
	Entry    *dict.Entry
}

// Lookup runs the read side of the state machine (spec.md §4.4 INIT →
// HIT|HIT_DISK|WAIT|NOT_ALLOWED|NOT_FOUND, via CHECK_PERSIST for
// entries with a File).
func (e *Engine) Lookup(rule *config.Rule, req *keybuild.Request) (*Result, error) {
	if req.Method != "GET" && req.Method != "HEAD" {
		return &Result{State: StateNotAllowed}, nil
	}
	key := keybuild.Build(rule.KeyRecipe, req)
	hash := keybuild.Hash(key)

	entry := e.Dict.Get(key, hash)
	if entry == nil {
		return &Result{State: StateNotFound}, nil
	}

	switch entry.State {
	case dict.StateCreating:
		return &Result{State: StateWait, Entry: entry}, nil

	case dict.StateValid:
		if entry.Data != nil {
			entry.Data.AddClient()
			e.Stats.IncHit()
			return &Result{
				State:    StateHit,
				Elements: data.ElementChain(entry.Data),
				Info:     entry.Data.Info,
				Entry:    entry,
			}, nil
		}
		if entry.File != "" {
			return e.loadFromDisk(rule, entry)
		}
		return &Result{State: StateNotFound}, nil

	default: // dict.StateInvalid
		// The HK loader inserts disk-discovered entries as INVALID with
		// File set (dict.SetFromDisk); a read still falls through to
		// CHECK_PERSIST for those instead of reporting a miss, the same
		// as an explicitly deleted entry with no File left behind.
		if entry.File != "" {
			return e.loadFromDisk(rule, entry)
		}
		return &Result{State: StateNotFound}, nil
	}
}

// loadFromDisk implements CHECK_PERSIST → HIT_DISK (spec.md §4.4,
// §4.5): validate the on-disk record, read its element chain back into
// memory, and leave the DO uncached (a disk hit does not promote the
// entry to a memory-resident one; that is Warmup's job, not the read
// path's). When the primary record fails its Valid()/read check, this
// falls back to reconstructing the payload from the rule's redundancy
// shards (SPEC_FULL.md §4.8) before giving up.
func (e *Engine) loadFromDisk(rule *config.Rule, entry *dict.Entry) (*Result, error) {
	now := dict.NowMS()
	if entry.ExpireMS != 0 && now >= entry.ExpireMS {
		return &Result{State: StateNotFound}, nil
	}

	payload, ok := e.readRecord(entry, now)
	if !ok && rule.Redundancy > 0 {
		if p, err := e.reconstructPayload(rule, entry); err == nil {
			payload, ok = p, true
		}
	}
	if !ok {
		return &Result{State: StateNotFound}, nil
	}

	elems, info, err := decodeElements(payload, rule, nil)
	if err != nil {
		return &Result{State: StateNotFound}, nil
	}

	e.Stats.IncHitDisk()
	return &Result{State: StateHitDisk, Elements: elems, Info: info}, nil
}

// readRecord validates and reads the primary on-disk record's payload,
// the fast path taken when entry.File is intact.
func (e *Engine) readRecord(entry *dict.Entry, now int64) ([]byte, bool) {
	if err := e.Store.Valid(entry.File, entry.Key, entry.Hash, now); err != nil {
		return nil, false
	}
	f, err := e.Store.OpenForRead(entry.File)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	meta, err := e.Store.GetMeta(f)
	if err != nil {
		return nil, false
	}
	off := int64(ps.WireSize) + int64(meta.KeyLen)
	payload := make([]byte, meta.CacheLen)
	if _, err := f.ReadAt(payload, off); err != nil {
		return nil, false
	}
	return payload, true
}

// reconstructPayload falls back to the redundancy shards written
// alongside entry.File (SPEC_FULL.md §4.8) when the primary record fails
// Valid()/open/read, e.g. after filesystem corruption or a missing
// file; entry.Key/Hash/ExpireMS are already known from the dict, so
// unlike the primary record this path needs no independent identity or
// expiry check beyond the one already done in loadFromDisk.
func (e *Engine) reconstructPayload(rule *config.Rule, entry *dict.Entry) ([]byte, error) {
	enc, err := e.erasureFor(rule.Redundancy)
	if err != nil {
		return nil, err
	}
	return enc.Reconstruct(entry.File)
}

// decodeElements reverses the on-disk element encoding written by
// encodeElements, undoing compression first when the rule requests it.
func decodeElements(payload []byte, rule *config.Rule, meta *ps.Meta) ([]*mes.Element, data.Info, error) {
	if rule.Compress && len(payload) > 0 {
		out, err := ps.DecompressPayload(payload)
		if err == nil {
			payload = out
		}
	}
	var elems []*mes.Element
	buf := payload
	for len(buf) >= 4 {
		info := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
		buf = buf[4:]
		n := mes.UnpackLen(info)
		if uint32(len(buf)) < n {
			return nil, data.Info{}, fmt.Errorf("engine: truncated element stream")
		}
		elems = append(elems, &mes.Element{Info: info, Data: buf[:n:n]})
		buf = buf[n:]
	}
	return elems, data.Info{}, nil
}

// encodeElements serializes an element chain as a flat
// [info(4) data(n)]... stream, the format written to disk and rebuilt
// by decodeElements.
func encodeElements(elems []*mes.Element) []byte {
	var out []byte
	for _, el := range elems {
		var hdr [4]byte
		hdr[0] = byte(el.Info)
		hdr[1] = byte(el.Info >> 8)
		hdr[2] = byte(el.Info >> 16)
		hdr[3] = byte(el.Info >> 24)
		out = append(out, hdr[:]...)
		out = append(out, el.Data...)
	}
	return out
}

// admitResult is the singleflight payload: either an existing entry to
// wait on/read, or a freshly admitted CREATING entry.
type admitResult struct {
	entry    *dict.Entry
	state    State
}

// BeginCreate admits an entry for (key,hash) for the explicit write API
// (spec.md §4.4 CREATE, S3 "Overwrite"), collapsing concurrent
// admissions for the same key through singleflight before the dict lock
// is ever taken (SPEC_FULL.md §5). A pre-existing VALID entry is
// reopened for CREATING in place rather than short-circuited, since a
// write endpoint's POST/PUT always means "set", not "only if absent".
func (e *Engine) BeginCreate(rule *config.Rule, key []byte, hash uint64) (*dict.Entry, State, error) {
	sfKey := strconv.FormatUint(hash, 16)
	ran := false // set only when this caller's function is the one singleflight runs
	v, err, _ := e.sf.Do(sfKey, func() (interface{}, error) {
		ran = true
		e.Dict.Lock()
		defer e.Dict.Unlock()

		if existing := e.Dict.GetLocked(key, hash); existing != nil {
			switch existing.State {
			case dict.StateCreating:
				return admitResult{entry: existing, state: StateWait}, nil
			case dict.StateValid:
				if existing.Data != nil {
					existing.Data.Invalidate()
				}
				existing.Data = nil
				existing.File = ""
				existing.State = dict.StateCreating
				return admitResult{entry: existing, state: StateCreate}, nil
			}
		}
		if e.Stats.Full() {
			return admitResult{state: StateFull}, nil
		}
		entry := e.Dict.Set(key, hash, rule)
		return admitResult{entry: entry, state: StateCreate}, nil
	})
	if err != nil {
		return nil, StateError, err
	}
	r := v.(admitResult)
	if r.state == StateCreate && !ran {
		// A caller that shared another caller's admission did not win
		// the CREATING entry: it waits instead of building a second DO.
		return r.entry, StateWait, nil
	}
	return r.entry, r.state, nil
}

// FinishCreate attaches a completed element chain to entry, making it
// VALID and memory-resident, and persists it to disk when the rule's
// mode requires (spec.md §4.4 CREATE → END, §4.5 "sync" writes inline).
func (e *Engine) FinishCreate(entry *dict.Entry, rule *config.Rule, elems []*mes.Element, info data.Info) error {
	do := e.Ring.New()
	do.Element = chainElements(elems)
	do.Info = info

	var expireMS int64
	if rule.TTLSeconds > 0 {
		expireMS = dict.NowMS() + rule.TTLSeconds*1000
	}

	e.Dict.Lock()
	entry.State = dict.StateValid
	entry.Data = do
	entry.ExpireMS = expireMS
	e.Dict.Unlock()

	e.Stats.IncCreate()
	e.Stats.AddDictUsed(int64(len(entry.Key)))

	if rule.Mode == config.DiskOff {
		return nil
	}
	if rule.Mode == config.DiskAsync {
		go func() {
			if err := e.persist(entry, rule, elems, expireMS); err != nil {
				cmn.Errorln("async persist:", err)
			}
		}()
		return nil
	}
	return e.persist(entry, rule, elems, expireMS)
}

func chainElements(elems []*mes.Element) *mes.Element {
	if len(elems) == 0 {
		return nil
	}
	for i := 0; i < len(elems)-1; i++ {
		elems[i].Next = elems[i+1]
	}
	elems[len(elems)-1].Next = nil
	return elems[0]
}

// persist writes entry's record to disk per spec.md §4.3, applying
// compression and erasure redundancy per rule (SPEC_FULL.md §4.8/§4.9).
func (e *Engine) persist(entry *dict.Entry, rule *config.Rule, elems []*mes.Element, expireMS int64) error {
	path, err := e.Store.PathFor(entry.Hash)
	if err != nil {
		return err
	}
	payload := encodeElements(elems)

	compressed := false
	if rule.Compress {
		out, didCompress, err := ps.CompressPayload(payload)
		if err == nil {
			payload = out
			compressed = didCompress
		}
	}

	meta := &ps.Meta{
		Mode:      ps.DiskMode(rule.Mode),
		Hash:      entry.Hash,
		ExpireMS:  expireMS,
		HeaderLen: 0,
		KeyLen:    uint32(len(entry.Key)),
		CacheLen:  uint64(len(payload)),
	}
	if compressed {
		meta.Reserved = 1
	}

	f, err := e.Store.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := e.Store.Write(f, meta.Encode()); err != nil {
		return err
	}
	if err := e.Store.Write(f, entry.Key); err != nil {
		return err
	}
	if err := e.Store.Write(f, payload); err != nil {
		return err
	}

	if rule.Redundancy > 0 {
		enc, err := e.erasureFor(rule.Redundancy)
		if err == nil {
			if shards, err := enc.Split(payload); err == nil {
				_ = enc.WriteShards(path, shards, len(payload))
			}
		}
	}

	e.Dict.Lock()
	entry.File = path
	e.Dict.Unlock()

	if e.Index != nil {
		_ = e.Index.Put(entry.Hash, index.Record{Path: path, ExpireMS: expireMS})
	}
	return nil
}

// PersistPending writes a memory-resident entry to disk if its rule
// calls for it and no file exists yet, the operation the housekeeper's
// disk_saver phase drives (spec.md §4.5).
func (e *Engine) PersistPending(entry *dict.Entry) error {
	if entry.Data == nil || entry.File != "" || entry.Rule == nil {
		return nil
	}
	if entry.Rule.Mode == config.DiskOff {
		return nil
	}
	elems := data.ElementChain(entry.Data)
	return e.persist(entry, entry.Rule, elems, entry.ExpireMS)
}

func (e *Engine) erasureFor(dataShards int) (*ps.Erasure, error) {
	e.erasureMu.Lock()
	defer e.erasureMu.Unlock()
	if enc, ok := e.erasure[dataShards]; ok {
		return enc, nil
	}
	enc, err := ps.NewErasure(dataShards)
	if err != nil {
		return nil, err
	}
	e.erasure[dataShards] = enc
	return enc, nil
}

// AbortCreate marks a failed in-flight create INVALID so SweepTick
// reclaims it instead of leaving it stuck CREATING forever (spec.md
// §4.4 CREATE → ERROR).
func (e *Engine) AbortCreate(entry *dict.Entry) {
	e.Dict.Lock()
	entry.State = dict.StateInvalid
	e.Dict.Unlock()
}

// Delete implements spec.md §4.4 DELETE: mark the dict entry invalid
// and drop its index record; the on-disk file is unlinked later by the
// housekeeper's disk cleaner, never inline, so a concurrent HIT_DISK
// reader is never raced (SPEC_FULL.md Open Question 3).
func (e *Engine) Delete(rule *config.Rule, req *keybuild.Request) bool {
	key := keybuild.Build(rule.KeyRecipe, req)
	hash := keybuild.Hash(key)
	ok := e.Dict.Delete(key, hash)
	if e.Index != nil {
		_ = e.Index.Delete(hash)
	}
	e.Stats.IncEviction()
	return ok
}

// Warmup promotes a disk-resident entry into memory without waiting for
// a client request to do it (SPEC_FULL.md §6.3, adapted from the
// teacher's object-warmup xaction).
func (e *Engine) Warmup(rule *config.Rule, entry *dict.Entry) error {
	if entry.Data != nil {
		return nil
	}
	res, err := e.loadFromDisk(rule, entry)
	if err != nil {
		return err
	}
	if res.State != StateHitDisk {
		return cmn.Errorf(cmn.ErrNotFound, "warmup: no disk record")
	}
	do := e.Ring.New()
	do.Element = chainElements(res.Elements)
	do.Info = res.Info
	e.Dict.Lock()
	entry.Data = do
	entry.State = dict.StateValid
	e.Dict.Unlock()
	return nil
}
