package middleware

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"gomorgue/internal/pkg/cache"
	"gomorgue/internal/pkg/logger"
)

// RateLimiter limita cada IP a limit requisições por janela fixa de duração period.
// O IP vem de r.RemoteAddr; cabeçalhos de proxy só contam se o roteador instalar RealIP.
// Se o Redis falhar, a requisição segue: o limite nunca derruba a API.
func RateLimiter(client cache.Client, limit int, period time.Duration, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			key := "rate-limit:" + ip
			ctx := r.Context()

			count, err := client.IncrWindow(ctx, key, period)
			if err != nil {
				log.Warn("Falha ao consultar limite de requisições. Seguindo sem limite.", map[string]interface{}{"error": err.Error()})
				next.ServeHTTP(w, r)
				return
			}

			remaining := int64(limit) - count
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if count > int64(limit) {
				w.Header().Set("Retry-After", strconv.Itoa(int(period.Seconds())))
				writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Limite de requisições excedido.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
