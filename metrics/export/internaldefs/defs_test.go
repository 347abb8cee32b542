package internaldefs

import (
	"strings"
	"testing"

	goIdentity "github.com/MrEthical07/goIdentity"
)

func TestEveryCounterIsDefinedOnce(t *testing.T) {
	seen := map[goIdentity.MetricID]bool{}
	names := map[string]bool{}
	for _, d := range CounterDefs {
		if seen[d.ID] {
			t.Fatalf("metric %d defined twice", d.ID)
		}
		if d.ID == goIdentity.MetricValidateLatency {
			t.Fatalf("histogram id listed as counter")
		}
		if !strings.HasPrefix(d.Name, "goidentity_") || !strings.HasSuffix(d.Name, "_total") {
			t.Fatalf("bad counter name %q", d.Name)
		}
		seen[d.ID] = true
		names[d.Name] = true
	}
	for id := goIdentity.MetricID(0); id < goIdentity.MetricValidateLatency; id++ {
		if !seen[id] {
			t.Fatalf("metric %d has no definition", id)
		}
	}
	for _, sc := range SourceCounters {
		if names[sc.Name] {
			t.Fatalf("source counter %q collides with an engine counter", sc.Name)
		}
	}
}

func TestBuckets(t *testing.T) {
	if len(HistogramBounds) != 8 || len(HistogramBoundSuffix) != 8 {
		t.Fatalf("expected 8 bounds")
	}
	n := NormalizeBuckets([]uint64{1, 2, 3})
	if n != [8]uint64{1, 2, 3} {
		t.Fatalf("NormalizeBuckets = %v", n)
	}
	c := CumulativeBuckets([8]uint64{1, 2, 3, 0, 0, 0, 0, 4})
	if c != [8]uint64{1, 3, 6, 6, 6, 6, 6, 10} {
		t.Fatalf("CumulativeBuckets = %v", c)
	}
}
