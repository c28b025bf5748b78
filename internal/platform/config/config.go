// Pacote config centraliza o carregamento das variáveis de ambiente usadas pelos binários.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config agrega todos os parâmetros necessários para API e worker.
type Config struct {
	HTTPAddress string
	LogLevel    slog.Level

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ContadorKeyPrefix string
	NonceKeyPrefix    string
	SessaoKeyPrefix   string

	RateLimitEnabled       bool
	RateLimitMaxActions    int
	RateLimitWindowSeconds int
	RateLimitKeyPrefix     string

	TentativasMax            int
	TentativasJanelaSeconds  int
	TentativasLimiarSuspeito int

	MinTempoPaginaSeconds    int
	MinIntervaloVotosSeconds int

	TokenSecret              string
	TokenValidadeSeconds     int
	TokenExigir              bool
	TokenAceitarAutoAssinado bool

	AutoMigrate bool
	SeedDemo    bool

	WorkerMetricsAddress  string
	SweepIntervaloSeconds int
	SweepRetencaoSeconds  int
}

func Load() (Config, error) {
	// .env é cortesia para rodar local; em produção as variáveis vêm do ambiente.
	_ = godotenv.Load()

	// Defaults priorizam execução local; variáveis permitem sobrescrever em Docker/K8s.
	cfg := Config{
		HTTPAddress:              getEnv("HTTP_ADDRESS", ":8080"),
		LogLevel:                 getEnvAsLevel("LOG_LEVEL", slog.LevelInfo),
		PostgresHost:             getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:             getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:             getEnv("POSTGRES_USER", "urna"),
		PostgresPassword:         getEnv("POSTGRES_PASSWORD", "urna"),
		PostgresDB:               getEnv("POSTGRES_DB", "urna_votos"),
		PostgresSSLMode:          getEnv("POSTGRES_SSLMODE", "disable"),
		RedisAddr:                getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:            os.Getenv("REDIS_PASSWORD"),
		ContadorKeyPrefix:        getEnv("REDIS_COUNTER_PREFIX", "contador"),
		NonceKeyPrefix:           getEnv("REDIS_NONCE_PREFIX", "nonce:votos"),
		SessaoKeyPrefix:          getEnv("REDIS_SESSION_PREFIX", "sessao"),
		RateLimitEnabled:         getEnv("ANTIFRAUDE_RATE_LIMIT_ENABLED", "true") == "true",
		RateLimitMaxActions:      getEnvAsInt("ANTIFRAUDE_RATE_LIMIT_MAX", 30),
		RateLimitWindowSeconds:   getEnvAsInt("ANTIFRAUDE_RATE_LIMIT_WINDOW", 60),
		RateLimitKeyPrefix:       getEnv("ANTIFRAUDE_RATE_LIMIT_PREFIX", "ratelimit"),
		TentativasMax:            getEnvAsInt("TENTATIVAS_MAX", 5),
		TentativasJanelaSeconds:  getEnvAsInt("TENTATIVAS_JANELA", 900),
		TentativasLimiarSuspeito: getEnvAsInt("TENTATIVAS_LIMIAR_SUSPEITO", 3),
		MinTempoPaginaSeconds:    getEnvAsInt("MIN_TEMPO_PAGINA", 2),
		MinIntervaloVotosSeconds: getEnvAsInt("MIN_INTERVALO_VOTOS", 1),
		TokenSecret:              os.Getenv("VOTE_TOKEN_SECRET"),
		TokenValidadeSeconds:     getEnvAsInt("TOKEN_VALIDADE", 300),
		TokenExigir:              getEnvAsBool("TOKEN_EXIGIR", true),
		TokenAceitarAutoAssinado: getEnvAsBool("TOKEN_ACEITAR_AUTO_ASSINADO", true),
		AutoMigrate:              getEnvAsBool("DB_AUTO_MIGRATE", true),
		SeedDemo:                 getEnvAsBool("SEED_DEMO", false),
		WorkerMetricsAddress:     getEnv("WORKER_METRICS_ADDRESS", ":9090"),
		SweepIntervaloSeconds:    getEnvAsInt("SWEEP_INTERVALO", 300),
		SweepRetencaoSeconds:     getEnvAsInt("SWEEP_RETENCAO", 3600),
	}

	dbStr := getEnv("REDIS_DB", "0")
	dbInt, err := strconv.Atoi(dbStr)
	if err != nil {
		return Config{}, fmt.Errorf("config: REDIS_DB invalido: %w", err)
	}
	cfg.RedisDB = dbInt

	// A retenção do worker nunca pode ficar menor que a janela, senão linhas
	// vivas seriam varridas.
	if cfg.SweepRetencaoSeconds < cfg.TentativasJanelaSeconds {
		cfg.SweepRetencaoSeconds = cfg.TentativasJanelaSeconds
	}

	return cfg, nil
}

func (c Config) PostgresDSN() string {
	// Mantemos o formato DSN compatível com GORM e ferramentas de migração.
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.PostgresUser,
		c.PostgresPassword,
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDB,
		c.PostgresSSLMode,
	)
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvAsInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}

func getEnvAsLevel(key string, fallback slog.Level) slog.Level {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return fallback
	}
	return level
}

func getEnvAsBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	switch value {
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return true
	}
}
