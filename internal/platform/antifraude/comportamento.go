package antifraude

import (
	"errors"
	"time"
)

var (
	ErrComportamentoSuspeito = errors.New("comportamento suspeito")
	ErrMuitoRapido           = errors.New("voto rapido demais")
	ErrIntervaloCurto        = errors.New("intervalo entre submissoes curto demais")
)

// Pesos das heurísticas de comportamento. As regras acumulam: uma página
// lida em um segundo pontua por "muito rápido" e por "rápido" ao mesmo
// tempo e estoura o limiar sozinha.
const (
	pontosSemDado     = 0.5
	pontosMuitoRapido = 0.8
	pontosRapido      = 0.3
	pontosPaginaVelha = 0.2
	limiarSuspeita    = 1.0
)

const (
	tempoMuitoRapido = 2 * time.Second
	tempoRapido      = 5 * time.Second
	tempoPaginaVelha = time.Hour
)

// Comportamento carrega a pontuação de suspeita da submissão. A pontuação
// abaixo do limiar segue como sinal observável (log e métrica), nunca como
// bloqueio.
type Comportamento struct {
	Valido    bool
	Pontuacao float64
	Motivo    string
}

// AvaliarComportamento pontua o tempo de página da submissão. tempoNaPagina
// vem em segundos; nil significa que o cliente não mediu, o que vale meio
// ponto neutro e nunca bloqueia sozinho.
func AvaliarComportamento(tempoNaPagina *float64) Comportamento {
	if tempoNaPagina == nil {
		return Comportamento{Valido: true, Pontuacao: pontosSemDado}
	}

	tempo := time.Duration(*tempoNaPagina * float64(time.Second))
	var pontos float64
	motivo := ""
	if tempo < tempoMuitoRapido {
		pontos += pontosMuitoRapido
		motivo = "pagina lida rapido demais"
	}
	if tempo < tempoRapido {
		pontos += pontosRapido
		if motivo == "" {
			motivo = "pagina lida rapido"
		}
	}
	if tempo > tempoPaginaVelha {
		pontos += pontosPaginaVelha
		motivo = "pagina aberta ha tempo demais"
	}

	if pontos >= limiarSuspeita {
		return Comportamento{Valido: false, Pontuacao: pontos, Motivo: motivo}
	}
	return Comportamento{Valido: true, Pontuacao: pontos, Motivo: motivo}
}

// ConfigRitmo define os pisos duros de tempo da submissão.
type ConfigRitmo struct {
	MinTempoPagina time.Duration
	MinIntervalo   time.Duration
}

func ConfigRitmoPadrao() ConfigRitmo {
	return ConfigRitmo{
		MinTempoPagina: 2 * time.Second,
		MinIntervalo:   time.Second,
	}
}

// ValidarRitmo aplica os pisos: tempo mínimo de página quando o cliente
// mediu e espaçamento mínimo desde a tentativa anterior da mesma tupla.
// ultimaTentativa é o instante anterior ao incremento desta submissão; nil
// quando a tupla nunca tentou.
func ValidarRitmo(tempoNaPagina *float64, ultimaTentativa *time.Time, agora time.Time, cfg ConfigRitmo) error {
	if tempoNaPagina != nil {
		tempo := time.Duration(*tempoNaPagina * float64(time.Second))
		if tempo < cfg.MinTempoPagina {
			return ErrMuitoRapido
		}
	}
	if ultimaTentativa != nil && agora.Sub(*ultimaTentativa) < cfg.MinIntervalo {
		return ErrIntervaloCurto
	}
	return nil
}
