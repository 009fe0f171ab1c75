package engine

import (
	"testing"

	"github.com/ncache/ncache/internal/config"
	"github.com/ncache/ncache/internal/data"
	"github.com/ncache/ncache/internal/dict"
	"github.com/ncache/ncache/internal/keybuild"
	"github.com/ncache/ncache/internal/mes"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Root = t.TempDir()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	return cfg
}

func TestLookupMissThenCreateThenHit(t *testing.T) {
	cfg := testConfig(t)
	eng, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rule := cfg.RuleFor("default")
	req := &keybuild.Request{Method: "GET", Host: "a", Path: "/x"}

	res, err := eng.Lookup(rule, req)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if res.State != StateNotFound {
		t.Fatalf("state = %v, want NOT_FOUND", res.State)
	}

	key := keybuild.Build(rule.KeyRecipe, req)
	hash := keybuild.Hash(key)
	entry, state, err := eng.BeginCreate(rule, key, hash)
	if err != nil {
		t.Fatalf("BeginCreate: %v", err)
	}
	if state != StateCreate {
		t.Fatalf("state = %v, want CREATE", state)
	}

	elems := []*mes.Element{mes.NewStatusLine([]byte("200")), mes.NewData([]byte("payload")), mes.NewEndOfMessage()}
	if err := eng.FinishCreate(entry, rule, elems, data.Info{ContentType: "text/plain"}); err != nil {
		t.Fatalf("FinishCreate: %v", err)
	}

	res, err = eng.Lookup(rule, req)
	if err != nil {
		t.Fatalf("Lookup after create: %v", err)
	}
	if res.State != StateHit {
		t.Fatalf("state = %v, want HIT", res.State)
	}
	if res.Info.ContentType != "text/plain" {
		t.Fatalf("ContentType = %q, want text/plain", res.Info.ContentType)
	}
}

func TestBeginCreateRejectsWhenFull(t *testing.T) {
	cfg := testConfig(t)
	cfg.DataSize = 1
	eng, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	eng.Stats.AddUsedMem(10)
	rule := cfg.RuleFor("default")

	_, state, err := eng.BeginCreate(rule, []byte("k"), 1)
	if err != nil {
		t.Fatalf("BeginCreate: %v", err)
	}
	if state != StateFull {
		t.Fatalf("state = %v, want FULL", state)
	}
}

func TestBeginCreateCollapsesConcurrentAdmissionForSameKey(t *testing.T) {
	cfg := testConfig(t)
	eng, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rule := cfg.RuleFor("default")
	key := []byte("dup")
	hash := uint64(99)

	e1, s1, err := eng.BeginCreate(rule, key, hash)
	if err != nil {
		t.Fatalf("BeginCreate 1: %v", err)
	}
	if s1 != StateCreate {
		t.Fatalf("first admission state = %v, want CREATE", s1)
	}
	if e1.State != dict.StateCreating {
		t.Fatalf("entry state = %v, want CREATING", e1.State)
	}

	e2, s2, err := eng.BeginCreate(rule, key, hash)
	if err != nil {
		t.Fatalf("BeginCreate 2: %v", err)
	}
	if s2 != StateWait || e2 != e1 {
		t.Fatalf("second admission = (%v, same entry %v), want (WAIT, true)", s2, e2 == e1)
	}
}

func TestDeleteMarksInvalidAndFutureLookupMisses(t *testing.T) {
	cfg := testConfig(t)
	eng, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rule := cfg.RuleFor("default")
	req := &keybuild.Request{Method: "GET", Path: "/y"}
	key := keybuild.Build(rule.KeyRecipe, req)
	hash := keybuild.Hash(key)

	entry, _, err := eng.BeginCreate(rule, key, hash)
	if err != nil {
		t.Fatalf("BeginCreate: %v", err)
	}
	if err := eng.FinishCreate(entry, rule, []*mes.Element{mes.NewEndOfMessage()}, data.Info{}); err != nil {
		t.Fatalf("FinishCreate: %v", err)
	}

	if !eng.Delete(rule, req) {
		t.Fatal("expected Delete to report success")
	}
	res, err := eng.Lookup(rule, req)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if res.State != StateNotFound {
		t.Fatalf("state = %v, want NOT_FOUND after delete", res.State)
	}
}
