package catalog_test

import (
	"errors"
	"testing"

	"convertbot/internal/catalog"
	"convertbot/internal/services"
)

func TestNewKeepsDisplayOrder(t *testing.T) {
	c, err := catalog.New([]string{"png_to_jpeg", "jpg_to_png", " PNG_TO_JPG "})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	pairs := c.All()
	want := []catalog.Key{catalog.JPGToPNG, catalog.PNGToJPG, catalog.PNGToJPEG}
	if len(pairs) != len(want) {
		t.Fatalf("unexpected pair count: %d", len(pairs))
	}
	for i, key := range want {
		if pairs[i].Key != key {
			t.Fatalf("pair %d: got %s want %s", i, pairs[i].Key, key)
		}
	}
}

func TestNewRejectsUnknownKey(t *testing.T) {
	_, err := catalog.New([]string{"jpg_to_png", "gif_to_bmp"})
	if !errors.Is(err, catalog.ErrUnknownPair) {
		t.Fatalf("expected ErrUnknownPair, got %v", err)
	}
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound marker, got %v", err)
	}
}

func TestLookup(t *testing.T) {
	c, err := catalog.New([]string{"jpg_to_png"})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	pair, err := c.Lookup("jpg_to_png")
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if pair.SourceExt != ".jpg" || pair.TargetExt != ".png" {
		t.Fatalf("unexpected pair: %+v", pair)
	}

	if _, err := c.Lookup("webm_to_mp4"); !errors.Is(err, catalog.ErrUnknownPair) {
		t.Fatalf("disabled pair should be unknown, got %v", err)
	}
	if _, err := c.Lookup("nonsense"); !errors.Is(err, catalog.ErrUnknownPair) {
		t.Fatalf("expected ErrUnknownPair, got %v", err)
	}
}

func TestAllReturnsCopy(t *testing.T) {
	c, _ := catalog.New([]string{"jpg_to_png"})
	pairs := c.All()
	pairs[0].TargetExt = ".gif"
	again, _ := c.Lookup("jpg_to_png")
	if again.TargetExt != ".png" {
		t.Fatal("catalog mutated through All() result")
	}
}

func TestLabel(t *testing.T) {
	pair := catalog.Pair{Key: catalog.JPEGToPNG, SourceExt: ".jpeg", TargetExt: ".png"}
	if got := pair.Label(); got != "jpeg -> png" {
		t.Fatalf("unexpected label %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		pair catalog.Pair
		ok   bool
	}{
		{"valid", catalog.Pair{Key: "a_to_b", SourceExt: ".a", TargetExt: ".b"}, true},
		{"missing source", catalog.Pair{Key: "x", TargetExt: ".b"}, false},
		{"same extensions", catalog.Pair{Key: "x", SourceExt: ".png", TargetExt: ".png"}, false},
		{"no dot", catalog.Pair{Key: "x", SourceExt: "png", TargetExt: ".jpg"}, false},
		{"path separator", catalog.Pair{Key: "x", SourceExt: ".a/b", TargetExt: ".jpg"}, false},
		{"double extension", catalog.Pair{Key: "x", SourceExt: ".tar.gz", TargetExt: ".zip"}, false},
		{"missing key", catalog.Pair{SourceExt: ".a", TargetExt: ".b"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := catalog.Validate(tt.pair)
			if tt.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestBuiltinIncludesVideoPairs(t *testing.T) {
	var found int
	for _, pair := range catalog.Builtin() {
		if pair.Key == catalog.WebMToMP4 || pair.Key == catalog.MP4ToWebM {
			found++
		}
	}
	if found != 2 {
		t.Fatalf("expected both video pairs in builtin table, found %d", found)
	}
}

func TestNilCatalog(t *testing.T) {
	var c *catalog.Catalog
	if c.All() != nil {
		t.Fatal("nil catalog should list nothing")
	}
	if _, err := c.Lookup("jpg_to_png"); !errors.Is(err, catalog.ErrUnknownPair) {
		t.Fatalf("expected ErrUnknownPair, got %v", err)
	}
}
