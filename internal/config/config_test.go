package config

import "testing"

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() config failed validation: %v", err)
	}
}

func TestRuleResolveRejectsBadRedundancy(t *testing.T) {
	r := &Rule{Name: "r", Redundancy: 4}
	if err := r.resolve(); err == nil {
		t.Fatal("expected an error for redundancy outside {0,2,3}")
	}
}

func TestRuleResolveParsesMode(t *testing.T) {
	r := &Rule{Name: "r", ModeRaw: "sync"}
	if err := r.resolve(); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if r.Mode != DiskSync {
		t.Fatalf("Mode = %v, want DiskSync", r.Mode)
	}
}

func TestRuleForFallsBackToFirstRule(t *testing.T) {
	cfg := Default()
	if got := cfg.RuleFor("nonexistent"); got.Name != "default" {
		t.Fatalf("RuleFor fallback = %q, want %q", got.Name, "default")
	}
}
