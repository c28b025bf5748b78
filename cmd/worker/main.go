// Worker de manutenção: varre registros de tentativa expirados e expõe métricas próprias.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marcelojr/urna-aberta/internal/app/worker"
	"github.com/marcelojr/urna-aberta/internal/platform/clock"
	"github.com/marcelojr/urna-aberta/internal/platform/config"
	"github.com/marcelojr/urna-aberta/internal/platform/health"
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

	// Worker usa a mesma conexão GORM da API para compartilhar migrations e modelos.
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
		// Evitamos divergência de schema rodando a mesma migração condicional da API.
		if err := migrations.Run(db); err != nil {
			logger.Fatal("falha na migracao automatica", "err", err)
		}
	}

	// Redis entra aqui só para o readiness espelhar o da API.
	redisClient, err := redisstorage.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal("falha ao conectar no redis", "err", err)
	}
	defer redisClient.Close()

	checker := health.NewChecker(sqlDB, redisClient)

	if cfg.WorkerMetricsAddress != "" {
		go func() {
			// Metrics expõe observabilidade enquanto a goroutine principal varre a base.
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			mux.HandleFunc("/readyz", checker.ReadyHandler())
			logger.Info("worker metrics ouvindo", "addr", cfg.WorkerMetricsAddress)
			if err := http.ListenAndServe(cfg.WorkerMetricsAddress, mux); err != nil {
				logger.Error("erro no servidor de metrics do worker", "err", err)
			}
		}()
	}

	tentativaRepo := postgresstorage.NewTentativaRepository(db)
	sweeper := worker.NewAttemptSweeper(
		tentativaRepo,
		clock.NewSystemClock(),
		time.Duration(cfg.SweepIntervaloSeconds)*time.Second,
		time.Duration(cfg.SweepRetencaoSeconds)*time.Second,
	)

	logger.Info("worker iniciado",
		"intervalo_s", cfg.SweepIntervaloSeconds,
		"retencao_s", cfg.SweepRetencaoSeconds,
	)
	sweeper.Run(ctx)

	logger.Info("worker finalizado")
}
