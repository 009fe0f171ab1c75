package dict

import (
	"github.com/ncache/ncache/internal/config"
	"github.com/ncache/ncache/internal/data"
)

// State is the Entry lifecycle state of spec.md §3.
type State int

const (
	StateCreating State = iota
	StateValid
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateCreating:
		return "CREATING"
	case StateValid:
		return "VALID"
	default:
		return "INVALID"
	}
}

// Entry is the dictionary record for one cached key (spec.md §3).
// ExpireMS == 0 means no TTL. File is the on-disk filename, set once a
// synchronous/disk-only write completes or the housekeeper's lazy
// loader discovers a pre-existing record.
type Entry struct {
	Key      []byte
	Hash     uint64
	State    State
	ExpireMS int64
	Rule     *config.Rule
	Data     *data.DO
	File     string

	next *Entry // bucket chain link, set only by Dict
}
