package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"gomorgue/internal/api/chamber"
	"gomorgue/internal/api/exitguide"
	"gomorgue/internal/api/registrycase"
	"gomorgue/internal/pkg/logger"
)

// Options são os middlewares e handlers de infraestrutura opcionais do roteador.
type Options struct {
	Auth      func(http.Handler) http.Handler // nil: rotas /v1 abertas
	AdminOnly func(http.Handler) http.Handler // exige papel admin; ignorado sem Auth
	RateLimit func(http.Handler) http.Handler
	Metrics   http.Handler // servido em /metrics
	// TrustProxy instala RealIP: o IP do cliente passa a vir de X-Forwarded-For/X-Real-IP.
	TrustProxy bool
}

// NewRouter configura e retorna o roteador HTTP principal.
// Recebe os Handlers já inicializados por injeção de dependências.
func NewRouter(chambers *chamber.Handler, cases *registrycase.Handler, guides *exitguide.Handler, log logger.Logger, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if opts.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(requestLogger(log))
	r.Use(chimw.Recoverer)

	r.Get("/ping", PingHandler)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Group(func(r chi.Router) {
		if opts.RateLimit != nil {
			r.Use(opts.RateLimit)
		}

		var admin []func(http.Handler) http.Handler
		if opts.Auth != nil {
			r.Use(opts.Auth)
			if opts.AdminOnly != nil {
				admin = append(admin, opts.AdminOnly)
			}
		}

		chambers.Register(r, admin...)
		cases.Register(r)
		guides.Register(r)
	})

	return r
}

// PingHandler é uma função utilitária para o health check.
func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

func requestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("Requisição atendida.", map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  chimw.GetReqID(r.Context()),
			})
		})
	}
}
