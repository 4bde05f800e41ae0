package devstore

import (
	"strings"
	"testing"

	"github.com/hitoshi/datanet/internal/repository"
)

func namesOf(recs []repository.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i], _ = r["name"].(string)
	}
	return out
}

func TestSortRecords(t *testing.T) {
	records := func() []repository.Record {
		return []repository.Record{
			{"name": "a", "price": float64(300), "createdAt": "2026-01-02T00:00:00.5Z", "tier": "x"},
			{"name": "b", "price": float64(20), "createdAt": "2026-01-02T00:00:00Z", "tier": "y"},
			{"name": "c", "price": float64(1000), "createdAt": "2026-01-01T23:59:59Z", "tier": "x"},
			{"name": "d"},
		}
	}

	tests := []struct {
		name   string
		keys   string
		orders string
		want   string
	}{
		{"数値昇順", "price", "", "d,b,a,c"},
		{"数値降順", "price", "desc", "c,a,b,d"},
		{"時刻は桁数に関わらず時刻順", "createdAt", "DESC", "a,b,c,d"},
		{"複数キー", "tier,price", "asc,desc", "d,c,a,b"},
		{"存在しないキーは元の順", "missing", "", "a,b,c,d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs := records()
			SortRecords(recs, tt.keys, tt.orders)
			got := namesOf(recs)
			want := strings.Split(tt.want, ",")
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("order = %v, want %v", got, want)
				}
			}
		})
	}
}

func TestCompareValues_MixedTypesFallBackToString(t *testing.T) {
	if c := compareValues(float64(10), "9"); c >= 0 {
		t.Errorf("compareValues(10, \"9\") = %d, want < 0 by string order", c)
	}
	if c := compareValues(true, true); c != 0 {
		t.Errorf("compareValues(true, true) = %d, want 0", c)
	}
}
