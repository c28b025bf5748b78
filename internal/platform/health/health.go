package health

import (
	context "context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 2 * time.Second

// Checker responde o readiness da urna. Postgres é a fonte de verdade dos
// votos e o Redis sustenta contadores, nonces e a barreira de rajada; sem
// qualquer um deles a instância não deve receber tráfego.
type Checker struct {
	db    *sql.DB
	redis *redis.Client
}

func NewChecker(db *sql.DB, redis *redis.Client) *Checker {
	return &Checker{db: db, redis: redis}
}

type statusReadiness struct {
	Status      string            `json:"status"`
	Componentes map[string]string `json:"componentes"`
}

// ReadyHandler verifica cada dependência dentro do prazo e responde o estado
// por componente. Dependência nil conta como desligada e sai do relatório.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()

		resultado := statusReadiness{Status: "ok", Componentes: map[string]string{}}

		if c.db != nil {
			resultado.Componentes["postgres"] = "ok"
			if err := c.db.PingContext(ctx); err != nil {
				resultado.Componentes["postgres"] = "indisponivel"
				resultado.Status = "degradado"
			}
		}

		if c.redis != nil {
			resultado.Componentes["redis"] = "ok"
			if err := c.redis.Ping(ctx).Err(); err != nil {
				resultado.Componentes["redis"] = "indisponivel"
				resultado.Status = "degradado"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if resultado.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resultado)
	}
}
