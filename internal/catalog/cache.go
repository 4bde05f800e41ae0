// Package catalog はパッケージカタログの読み込みと表示用の正規化を提供する。
package catalog

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/datanet/internal/model"
	"github.com/hitoshi/datanet/internal/repository"
	"github.com/hitoshi/datanet/internal/security"
)

// Cache は1セッション分のカタログのスナップショットを保持する。
// 読み込み失敗時は空になり、古い内容を返し続けることはない。
type Cache struct {
	repo      repository.PackageRepository
	sanitizer security.TextSanitizer
	logger    *slog.Logger
	group     singleflight.Group

	mu       sync.RWMutex
	snapshot []model.Package
	byID     map[model.RecordID]model.Package
}

// NewCache はCacheを生成する。
func NewCache(repo repository.PackageRepository, sanitizer security.TextSanitizer, logger *slog.Logger) *Cache {
	return &Cache{
		repo:      repo,
		sanitizer: sanitizer,
		logger:    logger,
		byID:      make(map[model.RecordID]model.Package),
	}
}

// Load はストアからカタログを取得してスナップショットを置き換える。
// 同時に呼ばれた場合は1回の取得結果を共有する。自動リトライはしない。
func (c *Cache) Load(ctx context.Context) ([]model.Package, error) {
	// 取得は合流した呼び出し全員のものなので、最初の呼び出し元のキャンセルを引き継がない。
	// 上限はHTTPクライアントのタイムアウトで決まる。
	fetchCtx := context.WithoutCancel(ctx)
	v, err, shared := c.group.Do("packages", func() (any, error) {
		pkgs, err := c.repo.List(fetchCtx)
		if err != nil {
			c.replace(nil)
			c.logger.Error("カタログの取得に失敗しました",
				slog.String("error", err.Error()),
			)
			return nil, model.NewCatalogUnavailableError(err)
		}

		cleaned := make([]model.Package, 0, len(pkgs))
		for _, p := range pkgs {
			cleaned = append(cleaned, c.sanitize(p))
		}
		c.replace(cleaned)

		c.logger.Info("カタログを読み込みました",
			slog.Int("package_count", len(cleaned)),
		)
		return cleaned, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("カタログ取得を共有しました")
	}
	return clonePackages(v.([]model.Package)), nil
}

// Snapshot は現在のカタログのコピーを返す。未読み込みの場合は空。
func (c *Cache) Snapshot() []model.Package {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clonePackages(c.snapshot)
}

// Find は指定IDのパッケージを返す。
func (c *Cache) Find(id model.RecordID) (model.Package, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.byID[id]
	if !ok {
		return model.Package{}, false
	}
	return clonePackage(p), true
}

func (c *Cache) replace(pkgs []model.Package) {
	byID := make(map[model.RecordID]model.Package, len(pkgs))
	for _, p := range pkgs {
		byID[p.ID] = p
	}

	c.mu.Lock()
	c.snapshot = pkgs
	c.byID = byID
	c.mu.Unlock()
}

func (c *Cache) sanitize(p model.Package) model.Package {
	p.Name = c.sanitizer.Sanitize(p.Name)
	features := make([]string, 0, len(p.Features))
	for _, f := range p.Features {
		if s := c.sanitizer.Sanitize(f); s != "" {
			features = append(features, s)
		}
	}
	p.Features = features
	return p
}

func clonePackages(pkgs []model.Package) []model.Package {
	out := make([]model.Package, len(pkgs))
	for i, p := range pkgs {
		out[i] = clonePackage(p)
	}
	return out
}

func clonePackage(p model.Package) model.Package {
	features := make([]string, len(p.Features))
	copy(features, p.Features)
	p.Features = features
	return p
}
