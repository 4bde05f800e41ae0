// Package devstore はjson-server互換の開発用レコードストアを提供する。
//
// コレクションごとに一覧（等価フィルタ、_sort/_order）、1件取得、作成、削除を扱う。
// 保存先はrepository.RecordRepository（メモリまたはPostgreSQL）。
package devstore

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/datanet/internal/repository"
)

// maxBodyBytes は作成リクエストのボディ上限。
const maxBodyBytes = 1 << 20

// Collections は提供するコレクション名。
var Collections = []string{
	repository.CollectionPackages,
	repository.CollectionCart,
	repository.CollectionTransactions,
	repository.CollectionUsers,
}

// Server は開発用レコードストアのHTTPハンドラー群。
type Server struct {
	repo   repository.RecordRepository
	logger *slog.Logger
}

// NewServer はServerを生成する。
func NewServer(repo repository.RecordRepository, logger *slog.Logger) *Server {
	return &Server{repo: repo, logger: logger}
}

// NewRouter はServerのルーティングを設定したchi.Routerを返す。
// middlewaresは全ルートに適用する（ログ・リカバリーなど）。
func NewRouter(s *Server, middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middlewares...)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/db", s.handleDump)

	r.Route("/{collection}", func(r chi.Router) {
		r.Use(knownCollection)
		r.Get("/", s.handleList)
		r.Post("/", s.handleCreate)
		r.Get("/{id}", s.handleGet)
		r.Delete("/{id}", s.handleDelete)
	})

	return r
}

// knownCollection は未知のコレクションに404を返す。
func knownCollection(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !slices.Contains(Collections, chi.URLParam(r, "collection")) {
			writeJSON(w, http.StatusNotFound, struct{}{})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleList は GET /{collection} を処理する。
// "_"で始まらないクエリパラメータは等価フィルタとして扱う。
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	query := r.URL.Query()

	filters := make(map[string]string)
	for key, values := range query {
		if strings.HasPrefix(key, "_") || len(values) == 0 {
			continue
		}
		filters[key] = values[0]
	}

	recs, err := s.repo.List(r.Context(), collection, filters)
	if err != nil {
		s.internalError(w, "一覧の取得に失敗しました", collection, err)
		return
	}
	if recs == nil {
		recs = []repository.Record{}
	}

	if sortKeys := query.Get("_sort"); sortKeys != "" {
		SortRecords(recs, sortKeys, query.Get("_order"))
	}

	writeJSON(w, http.StatusOK, recs)
}

// handleGet は GET /{collection}/{id} を処理する。
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")

	rec, err := s.repo.Get(r.Context(), collection, chi.URLParam(r, "id"))
	if err != nil {
		s.internalError(w, "レコードの取得に失敗しました", collection, err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, struct{}{})
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handleCreate は POST /{collection} を処理する。idが無い場合はストアが採番する。
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")

	var rec repository.Record
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&rec); err != nil || rec == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "request body must be a JSON object"})
		return
	}

	created, err := s.repo.Create(r.Context(), collection, rec)
	if err != nil {
		var dup *repository.DuplicateIDError
		if errors.As(err, &dup) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": dup.Error()})
			return
		}
		s.internalError(w, "レコードの作成に失敗しました", collection, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// handleDelete は DELETE /{collection}/{id} を処理する。
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")

	deleted, err := s.repo.Delete(r.Context(), collection, chi.URLParam(r, "id"))
	if err != nil {
		s.internalError(w, "レコードの削除に失敗しました", collection, err)
		return
	}
	if !deleted {
		writeJSON(w, http.StatusNotFound, struct{}{})
		return
	}

	writeJSON(w, http.StatusOK, struct{}{})
}

// handleDump は GET /db を処理し、全コレクションを返す。
func (s *Server) handleDump(w http.ResponseWriter, r *http.Request) {
	dump := make(Seed, len(Collections))
	for _, name := range Collections {
		recs, err := s.repo.List(r.Context(), name, nil)
		if err != nil {
			s.internalError(w, "一覧の取得に失敗しました", name, err)
			return
		}
		if recs == nil {
			recs = []repository.Record{}
		}
		dump[name] = recs
	}
	writeJSON(w, http.StatusOK, dump)
}

func (s *Server) internalError(w http.ResponseWriter, msg, collection string, err error) {
	s.logger.Error(msg,
		slog.String("collection", collection),
		slog.String("error", err.Error()),
	)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
