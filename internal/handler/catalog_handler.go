package handler

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/datanet/internal/catalog"
	"github.com/hitoshi/datanet/internal/middleware"
	"github.com/hitoshi/datanet/internal/model"
)

// CatalogHandler はパッケージ一覧のHTTPハンドラー。
type CatalogHandler struct {
	normalizer *catalog.Normalizer
	logger     *slog.Logger
}

// NewCatalogHandler はCatalogHandlerを生成する。
func NewCatalogHandler(normalizer *catalog.Normalizer, logger *slog.Logger) *CatalogHandler {
	if normalizer == nil {
		normalizer = catalog.NewNormalizer(catalog.DefaultCapacityUnit)
	}
	return &CatalogHandler{normalizer: normalizer, logger: logger}
}

// msgCatalogFailed はカタログ読み込み失敗時の通知。
const msgCatalogFailed = "Failed to load packages"

// packageResponse は表示用の容量表記を付けたパッケージ。
type packageResponse struct {
	model.Package
	Capacity string `json:"capacity"`
}

// ListPackages はカタログを返す。?refresh=1 の場合はストアから読み直す。
// 未読み込みの場合も読み込む。
// GET /api/packages
func (h *CatalogHandler) ListPackages(w http.ResponseWriter, r *http.Request) {
	s, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	pkgs := s.Catalog.Snapshot()
	if len(pkgs) == 0 || r.URL.Query().Get("refresh") == "1" {
		loaded, err := s.Catalog.Load(r.Context())
		if err != nil {
			s.Context.Error(msgCatalogFailed)
			handleServiceError(w, h.logger, err)
			return
		}
		pkgs = loaded
	}

	out := make([]packageResponse, len(pkgs))
	for i, p := range pkgs {
		out[i] = packageResponse{Package: p, Capacity: h.normalizer.Display(p.Speed, p.Data)}
	}
	writeJSON(w, http.StatusOK, out)
}
