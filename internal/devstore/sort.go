package devstore

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/hitoshi/datanet/internal/repository"
)

// SortRecords はjson-serverの_sort/_orderと同じ規則でレコードを安定ソートする。
// keysとordersはカンマ区切りで複数指定でき、orderが足りないキーは昇順になる。
func SortRecords(recs []repository.Record, keys, orders string) {
	fields := strings.Split(keys, ",")
	dirs := strings.Split(orders, ",")

	slices.SortStableFunc(recs, func(a, b repository.Record) int {
		for i, field := range fields {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			c := compareValues(a[field], b[field])
			if i < len(dirs) && strings.EqualFold(strings.TrimSpace(dirs[i]), "desc") {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}

// compareValues は2つのJSON値を比較する。
// 数値同士は数値として、時刻として読める文字列同士は時刻として、それ以外は文字列表現で比べる。
// 値の無い側は小さいとみなす。
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	if x, ok := a.(float64); ok {
		if y, ok := b.(float64); ok {
			return cmp.Compare(x, y)
		}
	}

	if x, ok := a.(string); ok {
		if y, ok := b.(string); ok {
			tx, errX := time.Parse(time.RFC3339Nano, x)
			ty, errY := time.Parse(time.RFC3339Nano, y)
			if errX == nil && errY == nil {
				return tx.Compare(ty)
			}
			return strings.Compare(x, y)
		}
	}

	return strings.Compare(repository.FieldString(a), repository.FieldString(b))
}
