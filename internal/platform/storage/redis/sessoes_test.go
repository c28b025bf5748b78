package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelojr/urna-aberta/internal/domain"
)

func TestSessoes_Usuario_QuandoSessaoExiste_DeveRetornarUsuario(t *testing.T) {
	client, mr := setupRedis(t)
	sessoes := NewSessoes(client, "sessao")

	ctx := context.Background()

	// Arrange: sessão gravada pelo serviço de login
	require.NoError(t, mr.Set("sessao:tok-abc", "01HXXXXXXXXXXXXXXXXXXXXX"))

	// Act
	usuario, err := sessoes.Usuario(ctx, "tok-abc")

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, domain.UsuarioID("01HXXXXXXXXXXXXXXXXXXXXX"), usuario)
}

func TestSessoes_Usuario_QuandoNaoExiste_DeveRetornarErrNaoEncontrado(t *testing.T) {
	client, _ := setupRedis(t)
	sessoes := NewSessoes(client, "sessao")

	ctx := context.Background()

	// Act
	_, err := sessoes.Usuario(ctx, "tok-desconhecido")

	// Assert
	assert.ErrorIs(t, err, domain.ErrNaoEncontrado)
}

func TestSessoes_Usuario_QuandoSessaoExpirou_DeveRetornarErrNaoEncontrado(t *testing.T) {
	client, mr := setupRedis(t)
	sessoes := NewSessoes(client, "sessao")

	ctx := context.Background()

	// Arrange
	require.NoError(t, mr.Set("sessao:tok-abc", "01HXXXXXXXXXXXXXXXXXXXXX"))
	mr.SetTTL("sessao:tok-abc", time.Minute)

	// Act
	mr.FastForward(2 * time.Minute)
	_, err := sessoes.Usuario(ctx, "tok-abc")

	// Assert
	assert.ErrorIs(t, err, domain.ErrNaoEncontrado)
}
