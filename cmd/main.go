package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"gomorgue/config"
	"gomorgue/internal/domain"
	apperror "gomorgue/internal/errors"
	"gomorgue/internal/pkg/cache"
	"gomorgue/internal/pkg/database"
	"gomorgue/internal/pkg/logger"
	"gomorgue/internal/pkg/metrics"
	"gomorgue/internal/pkg/middleware"
	"gomorgue/internal/pkg/token"
	"gomorgue/internal/pkg/validation"

	// Camadas para Injeção de Dependências
	"gomorgue/internal/api/chamber"
	"gomorgue/internal/api/exitguide"
	"gomorgue/internal/api/registrycase"
	"gomorgue/internal/api/router"
	"gomorgue/internal/repository/auditrepo"
	"gomorgue/internal/repository/caserepo"
	"gomorgue/internal/repository/chamberrepo"
	"gomorgue/internal/repository/guiderepo"
	"gomorgue/internal/repository/memory"
	"gomorgue/internal/repository/sequencerepo"
	"gomorgue/internal/service/caseservice"
	"gomorgue/internal/service/chamberservice"
	"gomorgue/internal/service/exitguideservice"
	"gomorgue/internal/service/sequenceservice"
)

// storage reúne o Transactor e os repositórios do driver escolhido.
type storage struct {
	tx        database.Transactor
	chambers  chamberservice.ChamberRepository
	cases     caseservice.CaseRepository
	guides    exitguideservice.GuideRepository
	sequences sequenceservice.SequenceRepository
	audit     chamberservice.AuditRepository
	close     func() error
}

func main() {
	// 1. Configuração e Inicialização
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Falha ao carregar configurações: %v", err)
	}
	appLog := logger.NewLogger(cfg.LogLevel)
	if z, ok := appLog.(*logger.ZapLogger); ok {
		defer z.Sync()
	}
	appLog.Info("Inicializando serviço GoMorgue.", map[string]interface{}{"env": cfg.Environment, "storage": cfg.StorageDriver})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Observabilidade
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())))
	otel.SetTracerProvider(tp)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(reg)

	// 3. Cache (Redis), opcional: sem ele, guias são lidas do DB e não há rate limit.
	var cacheClient cache.Client
	if cfg.RedisAddr != "" {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.CacheTimeout)
		redisClient, err := cache.NewRedisClient(pingCtx, cfg.RedisAddr)
		cancel()
		if err != nil {
			appLog.Warn("Redis indisponível. Seguindo sem cache e sem rate limit.", map[string]interface{}{"addr": cfg.RedisAddr, "error": err.Error()})
		} else {
			defer redisClient.Close()
			cacheClient = redisClient
			appLog.Info("Conexão Redis estabelecida.", nil)
		}
	}

	// 4. Armazenamento
	store, err := openStorage(ctx, cfg, cacheClient, appLog)
	if err != nil {
		appLog.Fatal("Falha ao inicializar o armazenamento.", err)
	}
	defer store.close()

	// 5. INJEÇÃO DE DEPENDÊNCIAS: Repository -> Service -> Handler
	v := validation.New()
	chamberSvc := chamberservice.NewService(store.tx, store.chambers, store.audit, appMetrics, v, appLog)
	sequenceSvc := sequenceservice.NewService(store.tx, store.sequences, appLog)
	caseSvc := caseservice.NewService(caseservice.Deps{
		Tx:        store.tx,
		Repo:      store.cases,
		Chambers:  chamberSvc,
		Sequences: sequenceSvc,
		Audit:     store.audit,
		Metrics:   appMetrics,
		Validator: v,
		Logger:    appLog,
	})
	issuer := exitguideservice.NewService(exitguideservice.Deps{
		Tx:        store.tx,
		Guides:    store.guides,
		Cases:     caseSvc,
		Sequences: sequenceSvc,
		Audit:     store.audit,
		Metrics:   appMetrics,
		Validator: v,
		Logger:    appLog,
	})

	if err := seedChambers(ctx, cfg, chamberSvc, appLog); err != nil {
		appLog.Fatal("Falha ao criar câmaras iniciais.", err)
	}
	// Publica os gauges de ocupação desde o início.
	if _, err := chamberSvc.Occupancy(ctx, ""); err != nil {
		appLog.Warn("Falha ao ler ocupação inicial.", map[string]interface{}{"error": err.Error()})
	}

	opts := router.Options{
		Metrics:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		TrustProxy: cfg.TrustProxyHeaders,
	}
	if cfg.AuthEnabled() {
		tokenSvc := token.NewService(cfg.JWTSecretKey, time.Hour)
		opts.Auth = middleware.NewAuthMiddleware(tokenSvc, appLog)
		opts.AdminOnly = middleware.PermissionMiddleware(domain.RoleAdmin)
	} else {
		appLog.Warn("JWT_SECRET_KEY não definida. Rotas /v1 sem autenticação.", nil)
	}
	if cacheClient != nil {
		opts.RateLimit = middleware.RateLimiter(cacheClient, cfg.RateLimitMaxRequests, cfg.RateLimitPeriod, appLog)
	}

	handler := router.NewRouter(
		chamber.NewHandler(chamberSvc, appLog),
		registrycase.NewHandler(caseSvc, appLog),
		exitguide.NewHandler(issuer, appLog),
		appLog, opts,
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 6. Execução e Graceful Shutdown
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		appLog.Info("Servidor GoMorgue ouvindo na porta", map[string]interface{}{"port": cfg.Port})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		appLog.Info("Sinal de encerramento recebido. Desligando servidor...", nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLog.Error("Servidor encerrado com erro.", err)
		return
	}
	appLog.Info("Servidor encerrado com sucesso.", nil)
}

func openStorage(ctx context.Context, cfg *config.Config, cacheClient cache.Client, appLog logger.Logger) (*storage, error) {
	if cfg.StorageDriver == config.StorageMemory {
		appLog.Warn("Usando armazenamento em memória. Os dados são perdidos ao encerrar.", nil)
		s := memory.NewStore()
		return &storage{
			tx:        s,
			chambers:  s.Chambers(),
			cases:     s.Cases(),
			guides:    s.Guides(),
			sequences: s.Sequences(),
			audit:     s.Audit(),
			close:     func() error { return nil },
		}, nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DBTimeout)
	defer cancel()
	db, err := database.NewPostgresDB(pingCtx, cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return nil, err
	}
	appLog.Info("Conexão PostgreSQL estabelecida.", nil)

	return &storage{
		tx:        database.NewTxManager(db, cfg.TxMaxAttempts, cfg.TxBaseBackoff, appLog),
		chambers:  chamberrepo.NewChamberRepository(db, cfg.DBTimeout, appLog),
		cases:     caserepo.NewCaseRepository(db, cfg.DBTimeout, appLog),
		guides:    guiderepo.NewGuideRepository(db, cacheClient, cfg.DBTimeout, cfg.ExitGuideCacheTTL, appLog),
		sequences: sequencerepo.NewSequenceRepository(db, cfg.DBTimeout, appLog),
		audit:     auditrepo.NewAuditRepository(db, cfg.DBTimeout, appLog),
		close:     db.Close,
	}, nil
}

// seedChambers cria as câmaras de SEED_CHAMBERS que ainda não existem.
func seedChambers(ctx context.Context, cfg *config.Config, svc *chamberservice.Service, appLog logger.Logger) error {
	seeds, err := cfg.ChamberSeeds()
	if err != nil {
		return err
	}
	for _, seed := range seeds {
		_, err := svc.CreateChamber(ctx, domain.Chamber{Code: seed.Code, Capacity: seed.Capacity})
		var conflict *apperror.ConflictError
		if errors.As(err, &conflict) {
			appLog.Debug("Câmara inicial já existe.", map[string]interface{}{"chamber_code": seed.Code})
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}
