package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marcelojr/urna-aberta/internal/domain"
)

func TestAttemptSweeperVarrer(t *testing.T) {
	agora := time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)
	repo := &memTentativaRepo{removidas: 7}
	sweeper := NewAttemptSweeper(repo, &fixedClock{now: agora}, time.Minute, time.Hour)

	n, err := sweeper.Varrer(context.Background())
	if err != nil {
		t.Fatalf("Varrer retornou erro inesperado: %v", err)
	}
	if n != 7 {
		t.Fatalf("esperava 7 registros removidos, veio %d", n)
	}

	esperado := agora.Add(-time.Hour)
	if !repo.ultimoCorte.Equal(esperado) {
		t.Fatalf("corte deveria ser %v, veio %v", esperado, repo.ultimoCorte)
	}
}

func TestAttemptSweeperVarrerPropagaErro(t *testing.T) {
	falha := errors.New("banco fora do ar")
	repo := &memTentativaRepo{err: falha}
	sweeper := NewAttemptSweeper(repo, &fixedClock{now: time.Now()}, time.Minute, time.Hour)

	if _, err := sweeper.Varrer(context.Background()); !errors.Is(err, falha) {
		t.Fatalf("esperava o erro do repositório, veio %v", err)
	}
}

func TestAttemptSweeperRunRepeteAteCancelar(t *testing.T) {
	repo := &memTentativaRepo{chamadas: make(chan struct{}, 16)}
	sweeper := NewAttemptSweeper(repo, &fixedClock{now: time.Now()}, 10*time.Millisecond, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	// Uma passada na partida e pelo menos uma do ticker.
	for i := 0; i < 2; i++ {
		select {
		case <-repo.chamadas:
		case <-time.After(2 * time.Second):
			t.Fatal("varredura não rodou dentro do prazo")
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run não encerrou após o cancelamento do contexto")
	}
}

func TestAttemptSweeperNormalizaParametros(t *testing.T) {
	sweeper := NewAttemptSweeper(&memTentativaRepo{}, &fixedClock{now: time.Now()}, 0, 0)
	if sweeper.intervalo <= 0 {
		t.Fatalf("intervalo deveria ganhar um padrão positivo, veio %v", sweeper.intervalo)
	}
	if sweeper.retencao <= 0 {
		t.Fatalf("retenção deveria ganhar um padrão positivo, veio %v", sweeper.retencao)
	}
}

type memTentativaRepo struct {
	removidas   int64
	err         error
	ultimoCorte time.Time
	chamadas    chan struct{}
}

func (m *memTentativaRepo) Obter(context.Context, domain.EnqueteID, string, string) (domain.TentativaVoto, error) {
	return domain.TentativaVoto{}, domain.ErrNaoEncontrado
}

func (m *memTentativaRepo) Incrementar(_ context.Context, _ domain.EnqueteID, _, _ string, agora time.Time, _ bool) (domain.TentativaVoto, error) {
	return domain.TentativaVoto{UltimaEm: agora}, nil
}

func (m *memTentativaRepo) Reiniciar(context.Context, domain.EnqueteID, string, string) error {
	return nil
}

func (m *memTentativaRepo) RemoverExpiradas(_ context.Context, antesDe time.Time) (int64, error) {
	m.ultimoCorte = antesDe
	if m.chamadas != nil {
		select {
		case m.chamadas <- struct{}{}:
		default:
		}
	}
	if m.err != nil {
		return 0, m.err
	}
	return m.removidas, nil
}

type fixedClock struct {
	now time.Time
}

func (f *fixedClock) Agora() time.Time {
	return f.now
}
