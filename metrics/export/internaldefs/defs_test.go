package internaldefs

import (
	"strings"
	"testing"
)

func TestFamiliesUniqueAndPrefixed(t *testing.T) {
	names := make(map[string]bool, len(Families))
	ids := make(map[uint16]bool)
	for _, fam := range Families {
		if !strings.HasPrefix(fam.Name, "fd_auth_") || !strings.HasSuffix(fam.Name, "_total") {
			t.Fatalf("family %q does not follow fd_auth_*_total", fam.Name)
		}
		if names[fam.Name] {
			t.Fatalf("duplicate family %q", fam.Name)
		}
		names[fam.Name] = true

		if fam.Label == "" && len(fam.Members) != 1 {
			t.Fatalf("unlabeled family %q has %d members", fam.Name, len(fam.Members))
		}
		values := make(map[string]bool, len(fam.Members))
		for _, m := range fam.Members {
			if ids[uint16(m.ID)] {
				t.Fatalf("metric id %d exported twice", m.ID)
			}
			ids[uint16(m.ID)] = true
			if fam.Label != "" && (m.Value == "" || values[m.Value]) {
				t.Fatalf("family %q: empty or duplicate label value %q", fam.Name, m.Value)
			}
			values[m.Value] = true
		}
	}
	for _, h := range HistogramDefs {
		if ids[uint16(h.ID)] {
			t.Fatalf("histogram id %d also exported as counter", h.ID)
		}
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("CumulativeBuckets = %v, want %v", got, want)
	}
	if len(HistogramBounds) != len(got) {
		t.Fatal("bucket bounds out of sync with bucket count")
	}
}
