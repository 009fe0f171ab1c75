// Package tassert provides minimal test assertion helpers shared across
// this repository's package-level tests, standard library only: no
// example repo in this corpus ships a dedicated assertion helper
// package, so it's not worth reaching for an external one.
package tassert

import "testing"

func Fatal(t *testing.T, cond bool, msg string, args ...interface{}) {
	t.Helper()
	if !cond {
		t.Fatalf(msg, args...)
	}
}

func Errorf(t *testing.T, cond bool, msg string, args ...interface{}) {
	t.Helper()
	if !cond {
		t.Errorf(msg, args...)
	}
}

func NoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
