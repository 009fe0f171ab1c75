package keybuild

import "testing"

func TestBuildGapOnAbsentField(t *testing.T) {
	recipe, err := ParseRecipe([]string{"host", "path"})
	if err != nil {
		t.Fatalf("parse recipe: %v", err)
	}
	withHost := Build(recipe, &Request{Host: "a", Path: "b"})
	withoutHost := Build(recipe, &Request{Host: "", Path: "ab"})
	if string(withHost) == string(withoutHost) {
		t.Fatalf("expected gap to prevent collision: %q == %q", withHost, withoutHost)
	}
}

func TestBuildMethodNormalizedToGET(t *testing.T) {
	recipe, err := ParseRecipe([]string{"method"})
	if err != nil {
		t.Fatalf("parse recipe: %v", err)
	}
	get := Build(recipe, &Request{Method: "GET"})
	post := Build(recipe, &Request{Method: "POST"})
	if string(get) != string(post) {
		t.Fatalf("expected all methods to normalize to GET: %q != %q", get, post)
	}
}

func TestBuildHeaderAndParam(t *testing.T) {
	recipe, err := ParseRecipe([]string{"header:X-Tenant", "param:id"})
	if err != nil {
		t.Fatalf("parse recipe: %v", err)
	}
	req := &Request{
		Headers: map[string][]string{"X-Tenant": {"acme"}},
		Params:  map[string][]string{"id": {"42"}},
	}
	key := Build(recipe, req)
	if got := string(key); got != "acme42" {
		t.Fatalf("got %q, want %q", got, "acme42")
	}
}

func TestBuildBodyParticipatesWhenRequested(t *testing.T) {
	recipe, err := ParseRecipe([]string{"body"})
	if err != nil {
		t.Fatalf("parse recipe: %v", err)
	}
	a := Build(recipe, &Request{Body: []byte("one")})
	b := Build(recipe, &Request{Body: []byte("two")})
	if string(a) == string(b) {
		t.Fatalf("expected different bodies to produce different keys")
	}
}

func TestParseRecipeRejectsUnknownComponent(t *testing.T) {
	if _, err := ParseRecipe([]string{"bogus"}); err == nil {
		t.Fatal("expected error for unknown recipe component")
	}
}

func TestParseRecipeRequiresNameForHeader(t *testing.T) {
	if _, err := ParseRecipe([]string{"header"}); err == nil {
		t.Fatal("expected error for header component missing a name")
	}
}

func TestHashIsDeterministic(t *testing.T) {
	k := []byte("same-key")
	if Hash(k) != Hash(k) {
		t.Fatal("expected Hash to be deterministic for identical input")
	}
}
