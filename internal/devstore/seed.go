package devstore

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/hitoshi/datanet/internal/repository"
)

//go:embed seed.json
var defaultSeed []byte

// Seed はコレクション名からレコード一覧への対応。json-serverのdb.jsonと同じ形。
type Seed map[string][]repository.Record

// DefaultSeed は組み込みのシードデータ（4つのパッケージとデモユーザー）を返す。
func DefaultSeed() (Seed, error) {
	return ReadSeed(bytes.NewReader(defaultSeed))
}

// ReadSeed はJSONからシードデータを読み込む。未知のコレクションはエラーとする。
func ReadSeed(r io.Reader) (Seed, error) {
	var seed Seed
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return nil, fmt.Errorf("failed to decode seed: %w", err)
	}
	for name := range seed {
		if !slices.Contains(Collections, name) {
			return nil, fmt.Errorf("unknown collection in seed: %q", name)
		}
	}
	return seed, nil
}

// LoadSeedFile はファイルからシードデータを読み込む。pathが空なら組み込みデータを返す。
func LoadSeedFile(path string) (Seed, error) {
	if path == "" {
		return DefaultSeed()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()
	return ReadSeed(f)
}

// Apply はシードデータをリポジトリへ投入し、投入した件数を返す。
// 既にレコードがあるコレクションは触らないため、永続バックエンドで繰り返し起動しても重複しない。
func Apply(ctx context.Context, repo repository.RecordRepository, seed Seed) (int, error) {
	inserted := 0
	for _, name := range Collections {
		recs := seed[name]
		if len(recs) == 0 {
			continue
		}
		existing, err := repo.List(ctx, name, nil)
		if err != nil {
			return inserted, fmt.Errorf("failed to check collection %s: %w", name, err)
		}
		if len(existing) > 0 {
			continue
		}
		for _, rec := range recs {
			if _, err := repo.Create(ctx, name, rec); err != nil {
				var dup *repository.DuplicateIDError
				if errors.As(err, &dup) {
					continue
				}
				return inserted, fmt.Errorf("failed to seed %s: %w", name, err)
			}
			inserted++
		}
	}
	return inserted, nil
}
