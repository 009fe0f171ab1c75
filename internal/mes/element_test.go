package mes

import "testing"

func TestPackSimpleRoundTrip(t *testing.T) {
	info := PackSimple(TypeData, 1234)
	if got := UnpackType(info); got != TypeData {
		t.Fatalf("type = %v, want TypeData", got)
	}
	if got := UnpackLen(info); got != 1234 {
		t.Fatalf("len = %d, want 1234", got)
	}
}

func TestPackHeaderRoundTrip(t *testing.T) {
	e := NewHeader("Content-Type", "text/plain")
	name, value := e.HeaderParts()
	if name != "Content-Type" || value != "text/plain" {
		t.Fatalf("got name=%q value=%q", name, value)
	}
	if got := e.Len(); got != uint32(len("Content-Type")+len("text/plain")) {
		t.Fatalf("Len() = %d, want %d", got, len("Content-Type")+len("text/plain"))
	}
}

func TestUnpackHeaderLensSplitsNameAndValue(t *testing.T) {
	info := PackHeader(TypeHeader, 5, 10)
	n, v := UnpackHeaderLens(info)
	if n != 5 || v != 10 {
		t.Fatalf("got n=%d v=%d, want 5,10", n, v)
	}
}

func TestElementChainOrdering(t *testing.T) {
	a := NewStatusLine([]byte("200"))
	b := NewEndOfHeaders()
	a.Next = b
	if a.Next.Type() != TypeEndOfHeaders {
		t.Fatalf("expected chained element to be EndOfHeaders")
	}
}
