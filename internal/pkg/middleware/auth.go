package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"gomorgue/internal/domain"
	apperror "gomorgue/internal/errors"
	"gomorgue/internal/pkg/logger"
	"gomorgue/internal/pkg/token"
)

// ContextKey é o tipo das chaves de contexto deste pacote.
type ContextKey int

const (
	UserClaimsKey ContextKey = iota
)

// UserClaims representa os dados do ator extraídos do token JWT.
type UserClaims struct {
	UserID string
	Role   domain.UserRole
}

// TokenService define o contrato de validação necessário para o middleware.
type TokenService interface {
	ValidateToken(tokenString string) (*token.CustomClaims, error)
}

// writeError responde com o corpo de erro padrão da API.
func writeError(w http.ResponseWriter, status int, category, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(domain.ErrorResponse{Code: status, Category: category, Message: message})
}

// NewAuthMiddleware valida o Bearer token e anexa ao contexto as claims e o ator usado na auditoria.
func NewAuthMiddleware(tokenSvc TokenService, log logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || tokenString == "" {
				unauthorized(w, "Token de autorização ausente ou malformado.")
				return
			}

			claims, err := tokenSvc.ValidateToken(tokenString)
			if err != nil {
				log.Debug("Token rejeitado.", map[string]interface{}{"path": r.URL.Path, "error": err.Error()})
				unauthorized(w, "Token inválido ou expirado.")
				return
			}

			userClaims := UserClaims{
				UserID: claims.ActorID(),
				Role:   domain.UserRole(claims.Role),
			}
			ctx := context.WithValue(r.Context(), UserClaimsKey, userClaims)
			ctx = domain.WithActor(ctx, userClaims.UserID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	err := apperror.NewUnauthorizedError(msg)
	writeError(w, err.HTTPStatus(), err.Category(), err.Error())
}

// GetUserClaimsFromContext é uma função utilitária para extrair as claims no handler.
func GetUserClaimsFromContext(ctx context.Context) (UserClaims, bool) {
	claims, ok := ctx.Value(UserClaimsKey).(UserClaims)
	return claims, ok
}

// PermissionMiddleware permite a requisição apenas para os papéis informados.
// Deve ser encadeado depois de NewAuthMiddleware.
func PermissionMiddleware(requiredRoles ...domain.UserRole) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetUserClaimsFromContext(r.Context())
			if !ok {
				unauthorized(w, "Autorização necessária. Token não processado.")
				return
			}

			for _, role := range requiredRoles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Acesso negado. Você não tem a permissão necessária.")
		})
	}
}
