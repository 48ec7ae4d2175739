package internaldefs

import (
	"strings"
	"testing"
)

func TestDefinitionsAreUnique(t *testing.T) {
	names := map[string]bool{AuditDroppedName: true, AuditSinkPanicsName: true}
	for _, def := range CounterDefs {
		if !strings.HasPrefix(def.Name, "deviceauth_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("bad counter name %q", def.Name)
		}
		if names[def.Name] {
			t.Fatalf("duplicate name %q", def.Name)
		}
		names[def.Name] = true
	}
	for _, def := range HistogramDefs {
		if names[def.Name] {
			t.Fatalf("duplicate name %q", def.Name)
		}
		names[def.Name] = true
	}
}

func TestCumulativeBuckets(t *testing.T) {
	raw := NormalizeBuckets([]uint64{1, 2, 0, 3})
	got := CumulativeBuckets(raw)
	want := [BucketCount]uint64{1, 3, 3, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
	bounds := UpperBoundsSeconds()
	if len(bounds) != BucketCount-1 || bounds[0] != 0.005 || bounds[len(bounds)-1] != 0.5 {
		t.Fatalf("unexpected bounds %v", bounds)
	}
}
