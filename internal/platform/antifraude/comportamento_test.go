package antifraude

import (
	"errors"
	"testing"
	"time"
)

func segundos(v float64) *float64 { return &v }

func TestAvaliarComportamento(t *testing.T) {
	tests := []struct {
		name       string
		tempo      *float64
		querValido bool
		querPontos float64
	}{
		{name: "sem medicao vale meio ponto neutro", tempo: nil, querValido: true, querPontos: 0.5},
		{name: "pagina lida em um segundo estoura o limiar", tempo: segundos(1), querValido: false, querPontos: 1.1},
		{name: "pagina lida em tres segundos so pontua", tempo: segundos(3), querValido: true, querPontos: 0.3},
		{name: "leitura normal nao pontua", tempo: segundos(42), querValido: true, querPontos: 0},
		{name: "pagina aberta ha duas horas pontua pouco", tempo: segundos(2 * 3600), querValido: true, querPontos: 0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := AvaliarComportamento(tt.tempo)
			if c.Valido != tt.querValido {
				t.Fatalf("valido = %v, esperava %v (motivo %q)", c.Valido, tt.querValido, c.Motivo)
			}
			if diff := c.Pontuacao - tt.querPontos; diff > 1e-9 || diff < -1e-9 {
				t.Fatalf("pontuacao = %v, esperava %v", c.Pontuacao, tt.querPontos)
			}
		})
	}
}

func TestAvaliarComportamento_RejeicaoVemComMotivo(t *testing.T) {
	c := AvaliarComportamento(segundos(0.5))
	if c.Valido {
		t.Fatal("meio segundo de pagina deveria reprovar")
	}
	if c.Motivo == "" {
		t.Fatal("reprovacao deveria vir com motivo")
	}
}

func TestValidarRitmo_PisoDeTempoNaPagina(t *testing.T) {
	agora := time.Date(2024, 5, 10, 20, 0, 0, 0, time.UTC)
	cfg := ConfigRitmoPadrao()

	if err := ValidarRitmo(segundos(1.5), nil, agora, cfg); !errors.Is(err, ErrMuitoRapido) {
		t.Fatalf("abaixo do piso deveria falhar com ErrMuitoRapido, veio: %v", err)
	}
	if err := ValidarRitmo(segundos(2), nil, agora, cfg); err != nil {
		t.Fatalf("no piso deveria passar, veio: %v", err)
	}
	// Cliente sem medicao nao sofre o piso; o caso vira pontuacao neutra.
	if err := ValidarRitmo(nil, nil, agora, cfg); err != nil {
		t.Fatalf("sem medicao deveria passar, veio: %v", err)
	}
}

func TestValidarRitmo_EspacamentoEntreSubmissoes(t *testing.T) {
	agora := time.Date(2024, 5, 10, 20, 0, 0, 0, time.UTC)
	cfg := ConfigRitmoPadrao()

	perto := agora.Add(-500 * time.Millisecond)
	if err := ValidarRitmo(segundos(10), &perto, agora, cfg); !errors.Is(err, ErrIntervaloCurto) {
		t.Fatalf("meio segundo de intervalo deveria falhar, veio: %v", err)
	}

	longe := agora.Add(-2 * time.Second)
	if err := ValidarRitmo(segundos(10), &longe, agora, cfg); err != nil {
		t.Fatalf("dois segundos de intervalo deveriam passar, veio: %v", err)
	}
}
