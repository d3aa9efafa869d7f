package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer esperado nos tokens do provedor de identidade do hospital.
const Issuer = "hospital-idp"

// TokenService define o contrato para manipulação de JWTs.
// A emissão pertence ao provedor de identidade; GenerateToken existe para ferramentas e testes.
type TokenService interface {
	GenerateToken(userID string, userRole string) (string, error)
	ValidateToken(tokenString string) (*CustomClaims, error)
}

// CustomClaims são as informações lidas do JWT. O ator é o Subject; user_id é aceito
// como alternativa para tokens antigos.
type CustomClaims struct {
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// ActorID retorna o identificador usado na auditoria.
func (c *CustomClaims) ActorID() string {
	if c.Subject != "" {
		return c.Subject
	}
	return c.UserID
}

// Service implementa a interface TokenService com HS256.
type Service struct {
	secretKey []byte
	expiry    time.Duration
}

// NewService cria uma nova instância do serviço Token.
func NewService(secretKey string, expiry time.Duration) *Service {
	return &Service{
		secretKey: []byte(secretKey),
		expiry:    expiry,
	}
}

// GenerateToken cria um JWT assinado para o ator e papel informados.
func (s *Service) GenerateToken(userID string, userRole string) (string, error) {
	now := time.Now()
	claims := CustomClaims{
		Role: userRole,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    Issuer,
			Subject:   userID,
		},
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("falha ao assinar o token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken valida assinatura, algoritmo, validade e emissor, e retorna as claims.
func (s *Service) ValidateToken(tokenString string) (*CustomClaims, error) {
	claims := &CustomClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("token inválido: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("token não é válido")
	}
	if claims.ActorID() == "" {
		return nil, errors.New("token sem identificação do ator")
	}
	return claims, nil
}
