// Pacote worker contém as rotinas de manutenção que rodam fora do caminho da requisição.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/marcelojr/urna-aberta/internal/domain"
	"github.com/marcelojr/urna-aberta/internal/platform/logger"
	"github.com/marcelojr/urna-aberta/internal/platform/metrics"
)

// AttemptSweeper remove os registros de tentativa que já saíram da janela de
// contagem há tempo suficiente para não pesarem em nenhum bloqueio futuro.
type AttemptSweeper struct {
	tentativas domain.TentativaRepository
	clock      domain.Clock
	intervalo  time.Duration
	retencao   time.Duration
}

func NewAttemptSweeper(tentativas domain.TentativaRepository, clock domain.Clock, intervalo, retencao time.Duration) *AttemptSweeper {
	if intervalo <= 0 {
		intervalo = 5 * time.Minute
	}
	if retencao <= 0 {
		retencao = time.Hour
	}
	return &AttemptSweeper{
		tentativas: tentativas,
		clock:      clock,
		intervalo:  intervalo,
		retencao:   retencao,
	}
}

// Varrer faz uma única passada e devolve quantos registros saíram.
func (s *AttemptSweeper) Varrer(ctx context.Context) (int64, error) {
	corte := s.clock.Agora().Add(-s.retencao)

	removidas, err := s.tentativas.RemoverExpiradas(ctx, corte)
	if err != nil {
		return 0, fmt.Errorf("worker: varrer tentativas: %w", err)
	}
	if removidas > 0 {
		metrics.AddAttemptsSwept(removidas)
	}
	return removidas, nil
}

// Run repete a varredura no intervalo configurado até o contexto encerrar.
func (s *AttemptSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.intervalo)
	defer ticker.Stop()

	// Primeira passada logo na partida; depois de um restart longo a base
	// pode estar cheia de registros mortos.
	s.executar(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.executar(ctx)
		}
	}
}

func (s *AttemptSweeper) executar(ctx context.Context) {
	removidas, err := s.Varrer(ctx)
	if err != nil {
		logger.Error("varredura de tentativas falhou", "err", err)
		return
	}
	if removidas > 0 {
		logger.Info("tentativas expiradas removidas", "removidas", removidas)
	}
}
