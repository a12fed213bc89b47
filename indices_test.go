package fluffy

import (
	"reflect"
	"testing"
)

func TestOrderedPathsWithPrefix(t *testing.T) {
	o := newOrderedPaths()
	for i, p := range []string{"/a", "/a/b", "/a/b/c", "/a/bb", "/a2", "/z"} {
		o.set(p, uint32(i))
	}

	got := o.withPrefix("/a/b/")
	want := []string{"/a/b/c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("withPrefix(/a/b/) = %v, want %v", got, want)
	}

	got = o.withPrefix("/a/")
	want = []string{"/a/b", "/a/b/c", "/a/bb"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("withPrefix(/a/) = %v, want %v", got, want)
	}
}

func TestOrderedPathsDelete(t *testing.T) {
	o := newOrderedPaths()
	o.set("/a", 1)
	o.set("/b", 2)
	o.set("/c", 3)

	o.delete("/b")
	if _, ok := o.get("/b"); ok {
		t.Fatal("expected /b to be gone after delete")
	}
	got := o.withPrefix("/")
	want := []string{"/a", "/c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("withPrefix(/) after delete = %v, want %v", got, want)
	}
}

func TestWatchIndicesRemoveByIDClearsAllIndices(t *testing.T) {
	idx := newWatchIndices()
	idx.insert(&WatchEntry{ID: 7, Path: "/root", Mask: standardMask})
	idx.roots["/root"] = struct{}{}

	e := idx.removeByID(7)
	if e == nil || e.Path != "/root" {
		t.Fatalf("removeByID returned %+v", e)
	}
	if _, ok := idx.byIDLookup(7); ok {
		t.Fatal("byID still has entry after removeByID")
	}
	if _, ok := idx.byPathLookup("/root"); ok {
		t.Fatal("byPath still has entry after removeByID")
	}
	if idx.isRoot("/root") {
		t.Fatal("roots still has entry after removeByID")
	}
}

func TestDemoteDescendantRoots(t *testing.T) {
	idx := newWatchIndices()
	idx.roots["/tmp/a/b"] = struct{}{}
	idx.roots["/tmp/a/b/c"] = struct{}{}
	idx.roots["/tmp/other"] = struct{}{}

	idx.demoteDescendantRoots("/tmp/a")
	if idx.isRoot("/tmp/a/b") || idx.isRoot("/tmp/a/b/c") {
		t.Fatal("expected descendants of /tmp/a to be demoted")
	}
	if !idx.isRoot("/tmp/other") {
		t.Fatal("/tmp/other is not a descendant of /tmp/a and should remain a root")
	}
}
