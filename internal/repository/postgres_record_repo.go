package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// pgUniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const pgUniqueViolation = "23505"

// PostgresRecordRepo はPostgreSQLのrecordsテーブルにJSONBでレコードを保存するRecordRepository実装。
type PostgresRecordRepo struct {
	db *sql.DB
}

// NewPostgresRecordRepo はPostgresRecordRepoを生成する。
func NewPostgresRecordRepo(db *sql.DB) *PostgresRecordRepo {
	return &PostgresRecordRepo{db: db}
}

// List はコレクションのレコードを挿入順で返す。
// フィルタは data->>key = value の完全一致で評価する。
func (r *PostgresRecordRepo) List(ctx context.Context, collection string, filters map[string]string) ([]Record, error) {
	query, args := buildListQuery(collection, filters)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}

	return out, nil
}

// Get は指定IDのレコードを返す。見つからない場合はnilを返す。
func (r *PostgresRecordRepo) Get(ctx context.Context, collection, id string) (Record, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT data FROM records WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&raw)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	return decodeRecord(raw)
}

// Create はレコードを保存する。idが無い場合はUUIDを採番する。
func (r *PostgresRecordRepo) Create(ctx context.Context, collection string, rec Record) (Record, error) {
	rec = cloneRecord(rec)
	if FieldString(rec["id"]) == "" {
		rec["id"] = uuid.New().String()
	}
	id := FieldString(rec["id"])

	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO records (collection, id, data) VALUES ($1, $2, $3)`,
		collection, id, string(raw),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
			return nil, &DuplicateIDError{Collection: collection, ID: id}
		}
		return nil, fmt.Errorf("failed to insert record: %w", err)
	}

	return rec, nil
}

// Delete は指定IDのレコードを削除する。
func (r *PostgresRecordRepo) Delete(ctx context.Context, collection, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM records WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// buildListQuery は一覧取得のSQLと引数を組み立てる。
// キー順を固定してプレースホルダ番号を決定的にする。
func buildListQuery(collection string, filters map[string]string) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT data FROM records WHERE collection = $1`)
	args := []any{collection}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(&b, ` AND data->>($%d::text) = $%d`, len(args)+1, len(args)+2)
		args = append(args, k, filters[k])
	}
	b.WriteString(` ORDER BY seq`)

	return b.String(), args
}

func decodeRecord(raw []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return rec, nil
}
