// Pacote redis implementa contadores, nonces de token e sessões sobre Redis
// para manter leitura e escrita baratas fora do Postgres.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marcelojr/urna-aberta/internal/domain"
)

// Nonces marca nonces de token como usados. A chave vive só durante a
// validade do token; depois disso o próprio token já expirou e a marca não
// precisa mais existir.
type Nonces struct {
	client *redis.Client
	prefix string
}

func NewNonces(client *redis.Client, prefix string) *Nonces {
	return &Nonces{
		client: client,
		prefix: prefix,
	}
}

// Consumir devolve true na primeira aparição do nonce e false nas seguintes.
// SETNX faz a checagem e a gravação num passo só, então duas submissões
// concorrentes com o mesmo token nunca passam as duas.
func (n *Nonces) Consumir(ctx context.Context, nonce string, validade time.Duration) (bool, error) {
	if validade <= 0 {
		validade = 5 * time.Minute
	}
	ok, err := n.client.SetNX(ctx, n.key(nonce), "1", validade).Result()
	if err != nil {
		return false, fmt.Errorf("redis nonces: marcar uso: %w", err)
	}
	return ok, nil
}

func (n *Nonces) key(nonce string) string {
	if n.prefix == "" {
		return nonce
	}
	return fmt.Sprintf("%s:%s", n.prefix, nonce)
}

var _ domain.Nonces = (*Nonces)(nil)
