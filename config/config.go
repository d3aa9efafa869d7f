package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Drivers de armazenamento suportados.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config armazena todas as configurações do serviço GoMorgue.
type Config struct {
	// Geral
	Port        string `env:"PORT" envDefault:"8080"`
	Environment string `env:"ENV" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Armazenamento
	StorageDriver string   `env:"STORAGE_DRIVER" envDefault:"postgres"`
	SeedChambers  []string `env:"SEED_CHAMBERS" envSeparator:","` // CODE:capacidade

	// Banco de Dados (PostgreSQL)
	DatabaseURL     string        `env:"DATABASE_URL"`
	DBTimeoutSec    int           `env:"DB_TIMEOUT_SEC" envDefault:"5"`
	TxMaxAttempts   int           `env:"DB_TX_MAX_ATTEMPTS" envDefault:"3"`
	TxBaseBackoffMs int           `env:"DB_TX_BASE_BACKOFF_MS" envDefault:"10"`
	DBTimeout       time.Duration `env:"-"`
	TxBaseBackoff   time.Duration `env:"-"`

	// Cache (Redis)
	RedisAddr            string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	CacheTimeoutSec      int           `env:"CACHE_TIMEOUT_SEC" envDefault:"10"`
	ExitGuideCacheTTLMin int           `env:"EXIT_GUIDE_CACHE_TTL_MIN" envDefault:"60"`
	CacheTimeout         time.Duration `env:"-"`
	ExitGuideCacheTTL    time.Duration `env:"-"`

	// Segurança (JWT emitido pelo provedor de identidade externo)
	JWTSecretKey string `env:"JWT_SECRET_KEY"`

	// Rate Limiting
	RateLimitMaxRequests int           `env:"RATE_LIMIT_MAX_REQUESTS" envDefault:"100"`
	RateLimitPeriodMin   int           `env:"RATE_LIMIT_PERIOD_MIN" envDefault:"1"`
	RateLimitPeriod      time.Duration `env:"-"`

	// Só habilite atrás de um proxy reverso que sobrescreve X-Forwarded-For/X-Real-IP.
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS" envDefault:"false"`
}

// ChamberSeed é uma câmara a ser criada na inicialização.
type ChamberSeed struct {
	Code     string
	Capacity int
}

// LoadConfig carrega o .env (se existir) e lê as variáveis de ambiente.
// Sem argumentos, procura o arquivo .env no diretório corrente.
func LoadConfig(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("falha ao ler arquivo .env: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("falha ao ler variáveis de ambiente: %w", err)
	}

	cfg.DBTimeout = time.Duration(cfg.DBTimeoutSec) * time.Second
	cfg.TxBaseBackoff = time.Duration(cfg.TxBaseBackoffMs) * time.Millisecond
	cfg.CacheTimeout = time.Duration(cfg.CacheTimeoutSec) * time.Second
	cfg.ExitGuideCacheTTL = time.Duration(cfg.ExitGuideCacheTTLMin) * time.Minute
	cfg.RateLimitPeriod = time.Duration(cfg.RateLimitPeriodMin) * time.Minute

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageDriver {
	case StoragePostgres:
		// mustGetEnv: a aplicação não inicia sem credenciais de DB
		if c.DatabaseURL == "" {
			return errors.New("Erro de Configuração: DATABASE_URL deve ser definida quando STORAGE_DRIVER=postgres")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("Erro de Configuração: STORAGE_DRIVER inválido %q (use postgres ou memory)", c.StorageDriver)
	}
	if c.TxMaxAttempts < 1 {
		return fmt.Errorf("Erro de Configuração: DB_TX_MAX_ATTEMPTS deve ser >= 1, recebido %d", c.TxMaxAttempts)
	}
	if c.DBTimeoutSec <= 0 {
		return fmt.Errorf("Erro de Configuração: DB_TIMEOUT_SEC deve ser positivo, recebido %d", c.DBTimeoutSec)
	}
	_, err := c.ChamberSeeds()
	return err
}

// AuthEnabled informa se as rotas /v1 exigem token.
func (c *Config) AuthEnabled() bool {
	return c.JWTSecretKey != ""
}

// ChamberSeeds interpreta SEED_CHAMBERS ("A:2,B:4").
func (c *Config) ChamberSeeds() ([]ChamberSeed, error) {
	seeds := make([]ChamberSeed, 0, len(c.SeedChambers))
	for _, raw := range c.SeedChambers {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		code, capStr, ok := strings.Cut(raw, ":")
		if !ok || strings.TrimSpace(code) == "" {
			return nil, fmt.Errorf("Erro de Configuração: SEED_CHAMBERS item %q deve ter o formato CODIGO:capacidade", raw)
		}
		capacity, err := strconv.Atoi(strings.TrimSpace(capStr))
		if err != nil || capacity <= 0 {
			return nil, fmt.Errorf("Erro de Configuração: capacidade inválida em SEED_CHAMBERS item %q", raw)
		}
		seeds = append(seeds, ChamberSeed{Code: strings.TrimSpace(code), Capacity: capacity})
	}
	return seeds, nil
}
