package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/marcelojr/urna-aberta/internal/domain"
)

// Sessoes resolve token Bearer para o usuário dono da sessão. Quem grava as
// sessões é o serviço de login, fora deste módulo; aqui só lemos.
type Sessoes struct {
	client *redis.Client
	prefix string
}

func NewSessoes(client *redis.Client, prefix string) *Sessoes {
	return &Sessoes{
		client: client,
		prefix: prefix,
	}
}

// Usuario devolve o usuário da sessão ou ErrNaoEncontrado quando o token não
// existe ou já expirou. Chamador trata ambos como visitante anônimo ou 401
// conforme a enquete exigir.
func (s *Sessoes) Usuario(ctx context.Context, token string) (domain.UsuarioID, error) {
	val, err := s.client.Get(ctx, s.key(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrNaoEncontrado
	}
	if err != nil {
		return "", fmt.Errorf("redis sessoes: buscar: %w", err)
	}
	return domain.UsuarioID(val), nil
}

func (s *Sessoes) key(token string) string {
	if s.prefix == "" {
		return token
	}
	return fmt.Sprintf("%s:%s", s.prefix, token)
}

var _ domain.Sessoes = (*Sessoes)(nil)
