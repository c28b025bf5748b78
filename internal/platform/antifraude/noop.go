package antifraude

import (
	"context"

	"github.com/marcelojr/urna-aberta/internal/domain"
)

// Noop representa a barreira grossa desabilitada.
type Noop struct{}

func NewNoop() Noop {
	return Noop{}
}

func (Noop) Validar(ctx context.Context, enqueteID domain.EnqueteID, origemIP string) error {
	// Implementação vazia usada quando o rate limit é desligado via config.
	return nil
}

var _ domain.Antifraude = Noop{}
