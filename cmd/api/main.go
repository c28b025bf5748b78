// Executável principal da API: carrega a configuração, inicializa dependências e sobe o servidor HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marcelojr/urna-aberta/internal/app/httpapi"
	"github.com/marcelojr/urna-aberta/internal/app/token"
	"github.com/marcelojr/urna-aberta/internal/app/voting"
	"github.com/marcelojr/urna-aberta/internal/app/web"
	"github.com/marcelojr/urna-aberta/internal/domain"
	"github.com/marcelojr/urna-aberta/internal/platform/antifraude"
	"github.com/marcelojr/urna-aberta/internal/platform/clock"
	"github.com/marcelojr/urna-aberta/internal/platform/config"
	"github.com/marcelojr/urna-aberta/internal/platform/health"
	"github.com/marcelojr/urna-aberta/internal/platform/ids"
	"github.com/marcelojr/urna-aberta/internal/platform/logger"
	"github.com/marcelojr/urna-aberta/internal/platform/migrations"
	postgresstorage "github.com/marcelojr/urna-aberta/internal/platform/storage/postgres"
	redisstorage "github.com/marcelojr/urna-aberta/internal/platform/storage/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("configuracao invalida", "err", err)
	}
	logger.SetLevel(cfg.LogLevel)

	// Mantemos a conexão compartilhada em todo o ciclo para reaproveitar pool e checar readiness.
	db, err := postgresstorage.Open(ctx, cfg.PostgresDSN())
	if err != nil {
		logger.Fatal("falha ao conectar no postgres", "err", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("falha ao resgatar sql.DB", "err", err)
	}
	defer sqlDB.Close()

	if cfg.AutoMigrate {
		// Rodamos migrations automáticas apenas se habilitado para evitar surpresas em produção.
		if err := migrations.Run(db); err != nil {
			logger.Fatal("falha na migracao automatica", "err", err)
		}
	}

	// Redis concentra contadores parciais, nonces de token, sessões e a barreira grossa por IP.
	redisClient, err := redisstorage.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal("falha ao conectar no redis", "err", err)
	}
	defer redisClient.Close()

	enqueteRepo := postgresstorage.NewEnqueteRepository(db)
	opcaoRepo := postgresstorage.NewOpcaoRepository(db)
	votoRepo := postgresstorage.NewVotoRepository(db)
	tentativaRepo := postgresstorage.NewTentativaRepository(db)
	contador := redisstorage.NewContador(redisClient, cfg.ContadorKeyPrefix)
	nonces := redisstorage.NewNonces(redisClient, cfg.NonceKeyPrefix)
	sessoes := redisstorage.NewSessoes(redisClient, cfg.SessaoKeyPrefix)
	clockSystem := clock.NewSystemClock()
	idGen := ids.NewGenerator()

	var antifraudeSvc domain.Antifraude = antifraude.NewNoop()
	if cfg.RateLimitEnabled {
		window := time.Duration(cfg.RateLimitWindowSeconds) * time.Second
		antifraudeSvc = antifraude.NewRedisRateLimiter(redisClient, cfg.RateLimitMaxActions, window, cfg.RateLimitKeyPrefix)
	}

	segredo := []byte(cfg.TokenSecret)
	if len(segredo) == 0 {
		// Sem segredo configurado geramos um em memória; tokens emitidos não
		// sobrevivem a um restart nem valem em outra réplica.
		segredo, err = token.ChaveAleatoria()
		if err != nil {
			logger.Fatal("falha ao gerar segredo de token", "err", err)
		}
		logger.Warn("VOTE_TOKEN_SECRET ausente, usando segredo efemero")
	}
	emissor := token.NewEmissor(segredo, clockSystem, time.Duration(cfg.TokenValidadeSeconds)*time.Second, cfg.TokenAceitarAutoAssinado)

	votingCfg := voting.Config{
		Tentativas: antifraude.ConfigTentativas{
			MaxTentativas:  cfg.TentativasMax,
			Janela:         time.Duration(cfg.TentativasJanelaSeconds) * time.Second,
			LimiarSuspeito: cfg.TentativasLimiarSuspeito,
		},
		Ritmo: antifraude.ConfigRitmo{
			MinTempoPagina: time.Duration(cfg.MinTempoPaginaSeconds) * time.Second,
			MinIntervalo:   time.Duration(cfg.MinIntervaloVotosSeconds) * time.Second,
		},
		ExigirToken: cfg.TokenExigir,
	}

	// Serviço agrega repositórios, portões antifraude e emissor de token.
	servico := voting.NewService(
		enqueteRepo,
		opcaoRepo,
		votoRepo,
		tentativaRepo,
		contador,
		nonces,
		antifraudeSvc,
		emissor,
		clockSystem,
		idGen,
		votingCfg,
	)

	if cfg.SeedDemo {
		if err := seedDemo(ctx, servico); err != nil {
			logger.Warn("falha ao semear enquete de demonstracao", "err", err)
		}
	}

	mux := http.NewServeMux()
	checker := health.NewChecker(sqlDB, redisClient)

	// HTTP expõe API, páginas, health check e métricas que o Prometheus coleta.
	api := httpapi.New(servico, sessoes, logger.L())
	api.Register(mux)
	frontend, err := web.New(servico)
	if err != nil {
		logger.Fatal("erro ao carregar templates", "err", err)
	}
	frontend.Register(mux)
	mux.HandleFunc("/readyz", checker.ReadyHandler())
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: cfg.HTTPAddress, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("encerramento do servidor", "err", err)
		}
	}()

	logger.Info("api ouvindo", "addr", cfg.HTTPAddress)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("erro no servidor", "err", err)
	}
	logger.Info("api finalizada")
}

// seedDemo cria uma enquete de demonstração quando a base sobe vazia, para
// rodar local sem um passo manual de carga.
func seedDemo(ctx context.Context, servico *voting.Service) error {
	ativas, err := servico.ListarAtivas(ctx)
	if err != nil {
		return err
	}
	if len(ativas) > 0 {
		return nil
	}
	inicio := time.Now().UTC()
	_, err = servico.CriarEnquete(ctx, domain.Enquete{
		Pergunta:          "Qual melhoria o bairro deve priorizar este ano?",
		Descricao:         "Enquete de demonstração criada pelo seed automático.",
		Anonima:           true,
		PermitirAlteracao: true,
		Inicio:            inicio,
		Fim:               inicio.Add(30 * 24 * time.Hour),
	}, []domain.Opcao{
		{Texto: "Reforma da praça central"},
		{Texto: "Ciclovia na avenida principal"},
		{Texto: "Iluminação das ruas do entorno"},
	})
	return err
}
