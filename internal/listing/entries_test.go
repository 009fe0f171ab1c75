package listing

import (
	"reflect"
	"testing"
)

func TestEntryMarshalUnmarshalRoundTrip(t *testing.T) {
	e := Entry{Key: "/a/b", State: "VALID", ExpireMS: 12345, OnDisk: true}
	b, err := e.MarshalMsg(nil)
	if err != nil {
		t.Fatalf("MarshalMsg: %v", err)
	}
	var got Entry
	rest, err := got.UnmarshalMsg(b)
	if err != nil {
		t.Fatalf("UnmarshalMsg: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("expected no trailing bytes, got %d", len(rest))
	}
	if !reflect.DeepEqual(e, got) {
		t.Fatalf("got %+v, want %+v", got, e)
	}
}

func TestEntryListMarshalUnmarshalRoundTrip(t *testing.T) {
	list := EntryList{Entries: []Entry{
		{Key: "/a", State: "VALID", ExpireMS: 1, OnDisk: false},
		{Key: "/b", State: "CREATING", ExpireMS: 0, OnDisk: true},
	}}
	b, err := list.MarshalMsg(nil)
	if err != nil {
		t.Fatalf("MarshalMsg: %v", err)
	}
	var got EntryList
	rest, err := got.UnmarshalMsg(b)
	if err != nil {
		t.Fatalf("UnmarshalMsg: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("expected no trailing bytes, got %d", len(rest))
	}
	if !reflect.DeepEqual(list, got) {
		t.Fatalf("got %+v, want %+v", got, list)
	}
}

func TestEntryListMarshalUnmarshalEmpty(t *testing.T) {
	list := EntryList{}
	b, err := list.MarshalMsg(nil)
	if err != nil {
		t.Fatalf("MarshalMsg: %v", err)
	}
	var got EntryList
	if _, err := got.UnmarshalMsg(b); err != nil {
		t.Fatalf("UnmarshalMsg: %v", err)
	}
	if len(got.Entries) != 0 {
		t.Fatalf("expected an empty list, got %d entries", len(got.Entries))
	}
}
