package tle

import (
	"errors"
	"testing"
)

func mustParse(t *testing.T, lines ...string) *Record {
	t.Helper()
	rec, err := ParseRecord(lines...)
	if err != nil {
		t.Fatalf("ParseRecord: %v", err)
	}
	return rec
}

func TestCatalogResolve(t *testing.T) {
	iss := mustParse(t, issName, issLine1, issLine2)
	metop := mustParse(t, "METOP-B", metopLine1, metopLine2)
	cat := NewCatalog([]*Record{iss, metop})

	tests := []struct {
		key  string
		want *Record
	}{
		{"25544", iss},
		{" 38771 ", metop},
		{"iss (zarya)", iss},
		{"Metop-B", metop},
	}
	for _, tt := range tests {
		got, err := cat.Resolve(tt.key)
		if err != nil || got != tt.want {
			t.Errorf("Resolve(%q) = %v, %v", tt.key, got, err)
		}
	}

	if _, err := cat.ByID(99999); !errors.Is(err, ErrNotFound) {
		t.Errorf("ByID(99999) err = %v, want ErrNotFound", err)
	}
	if _, err := cat.Resolve("12345"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(12345) err = %v, want ErrNotFound", err)
	}
}

func TestCatalogNewerEpochWins(t *testing.T) {
	older := mustParse(t, "SENTINEL-3A",
		"1 41335U 16011A   25045.50000000  .00000040  00000-0  33000-4 0  9990",
		"2 41335  98.6200 120.0000 0001100  90.0000 270.0000 14.26740000463216")
	newer := mustParse(t, "SENTINEL 3A",
		"1 41335U 16011A   25046.50000000  .00000040  00000-0  33000-4 0  9991",
		"2 41335  98.6200 120.0000 0001100  90.0000 270.0000 14.26740000463216")

	cat := NewCatalog([]*Record{newer, older})
	if cat.Len() != 1 {
		t.Fatalf("Len = %d, want 1", cat.Len())
	}
	if got, _ := cat.ByID(41335); got != newer {
		t.Error("older duplicate replaced the newer record")
	}

	cat = NewCatalog([]*Record{older, newer})
	if got, _ := cat.ByID(41335); got != newer {
		t.Error("newer duplicate did not replace the older record")
	}
	if _, err := cat.Lookup("SENTINEL-3A"); !errors.Is(err, ErrNotFound) {
		t.Errorf("replaced name still resolves: %v", err)
	}
	if got, err := cat.Lookup("sentinel 3a"); err != nil || got != newer {
		t.Errorf("Lookup(sentinel 3a) = %v, %v", got, err)
	}
}

func TestCatalogEpochRange(t *testing.T) {
	cat := NewCatalog([]*Record{
		mustParse(t, issLine1, issLine2),
		mustParse(t, metopLine1, metopLine2),
		mustParse(t, valladoLine1, valladoLine2),
	})
	r := cat.EpochRange()
	if r.Min.Year() != 2000 || r.Max.Year() != 2025 {
		t.Errorf("EpochRange = %v .. %v", r.Min, r.Max)
	}
	if empty := NewCatalog(nil).EpochRange(); !empty.Min.IsZero() || !empty.Max.IsZero() {
		t.Errorf("empty catalog range = %+v", empty)
	}
}

func TestCatalogRejectedNameRecoveredByLaterEntry(t *testing.T) {
	cat := NewCatalog(nil)
	cat.reject("METOP-B", malformed(1, "checksum", "2", errChecksum))
	if _, err := cat.Lookup("METOP-B"); !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("Lookup err = %v, want ErrMalformedRecord", err)
	}
	cat.Add(mustParse(t, "METOP-B", metopLine1, metopLine2))
	if _, err := cat.Lookup("METOP-B"); err != nil {
		t.Errorf("valid entry after rejection: %v", err)
	}
	if len(cat.Rejected) != 1 {
		t.Errorf("rejection list lost: %+v", cat.Rejected)
	}
}
