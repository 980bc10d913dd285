package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"optropic-code-service/config"
)

// NewRouter はルーターを生成する。
func NewRouter(kh *KeyHandler, ch *CodeHandler, vh *VerifyHandler, sh *SecurityHandler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)

	// ルート定義
	r.Route("/v1/projects/{project_id}", func(r chi.Router) {
		r.Route("/keys", func(r chi.Router) {
			r.Post("/", kh.GenerateKey)
			r.Get("/", kh.ListKeys)
			r.Post("/{key_id}/rotate", kh.RotateKey)
			r.Delete("/{key_id}", kh.RevokeKey)
		})
		r.Route("/codes", func(r chi.Router) {
			r.Post("/", ch.IssueCode)
			r.Get("/", ch.ListCodes)
			r.Get("/stats", ch.GetStats)
			r.Get("/lookup", ch.LookupCode)
			r.Delete("/{code_id}", ch.RevokeCode)
		})
		r.Route("/security", func(r chi.Router) {
			r.Get("/suspicious", sh.SuspiciousActivity)
			r.Get("/anomalies", sh.Anomalies)
		})
	})
	r.Post("/v1/verify", vh.Verify)

	if cfg.OtelEnabled {
		return otelhttp.NewHandler(r, "http.server")
	}
	return r
}
