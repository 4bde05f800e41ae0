package repository

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// MemoryRecordRepo はプロセス内メモリにレコードを保持するRecordRepository実装。
// 開発用ストアとテストで使用する。
type MemoryRecordRepo struct {
	mu          sync.RWMutex
	collections map[string][]Record
}

// NewMemoryRecordRepo は空のMemoryRecordRepoを生成する。
func NewMemoryRecordRepo() *MemoryRecordRepo {
	return &MemoryRecordRepo{collections: make(map[string][]Record)}
}

// List はコレクションのレコードを挿入順で返す。
func (r *MemoryRecordRepo) List(_ context.Context, collection string, filters map[string]string) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, 0, len(r.collections[collection]))
	for _, rec := range r.collections[collection] {
		if matchesFilters(rec, filters) {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

// Get は指定IDのレコードを返す。見つからない場合はnilを返す。
func (r *MemoryRecordRepo) Get(_ context.Context, collection, id string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rec := range r.collections[collection] {
		if FieldString(rec["id"]) == id {
			return cloneRecord(rec), nil
		}
	}
	return nil, nil
}

// Create はレコードを末尾に追加する。idが無い場合はUUIDを採番する。
func (r *MemoryRecordRepo) Create(_ context.Context, collection string, rec Record) (Record, error) {
	rec = cloneRecord(rec)
	if FieldString(rec["id"]) == "" {
		rec["id"] = uuid.New().String()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := FieldString(rec["id"])
	for _, existing := range r.collections[collection] {
		if FieldString(existing["id"]) == id {
			return nil, &DuplicateIDError{Collection: collection, ID: id}
		}
	}
	r.collections[collection] = append(r.collections[collection], rec)
	return cloneRecord(rec), nil
}

// Delete は指定IDのレコードを削除する。
func (r *MemoryRecordRepo) Delete(_ context.Context, collection, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	recs := r.collections[collection]
	for i, rec := range recs {
		if FieldString(rec["id"]) == id {
			r.collections[collection] = append(recs[:i:i], recs[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// DuplicateIDError は同一コレクション内でIDが重複したことを表す。
type DuplicateIDError struct {
	Collection string
	ID         string
}

// Error はerrorインターフェースを実装する。
func (e *DuplicateIDError) Error() string {
	return "duplicate id " + e.ID + " in " + e.Collection
}

// FieldString はJSONデコード済みの値をフィルタ比較用の文字列に変換する。
// PostgreSQLの ->> 演算子と同じ表現になるようにする。
func FieldString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func matchesFilters(rec Record, filters map[string]string) bool {
	for k, want := range filters {
		if FieldString(rec[k]) != want {
			return false
		}
	}
	return true
}

// cloneRecord はトップレベルのキーをコピーする。
// レコードはフラットなので値の共有は問題にならないが、配列はJSON経由で複製する。
func cloneRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		switch v.(type) {
		case []any, map[string]any:
			b, err := json.Marshal(v)
			if err == nil {
				var cp any
				if json.Unmarshal(b, &cp) == nil {
					v = cp
				}
			}
		}
		out[k] = v
	}
	return out
}
