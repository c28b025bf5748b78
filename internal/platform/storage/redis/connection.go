package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tempoDeResposta limita tanto a espera por conexão do pool quanto o ping de
// abertura.
const tempoDeResposta = 5 * time.Second

// NewClient abre o pool compartilhado pelos adaptadores deste pacote e falha
// cedo quando o servidor não responde; subir a api sem Redis deixaria as
// submissões sem checagem de nonce e sem barreira de rajada.
func NewClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		PoolSize:    50,
		PoolTimeout: tempoDeResposta,
	})

	ctx, cancel := context.WithTimeout(context.Background(), tempoDeResposta)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: ping falhou: %w", err)
	}

	return client, nil
}
