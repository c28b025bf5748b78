package antifraude

import (
	"time"

	"github.com/marcelojr/urna-aberta/internal/domain"
)

// ConfigTentativas parametriza a janela fina por tupla de identidade
// (enquete, IP, fingerprint).
type ConfigTentativas struct {
	MaxTentativas  int
	Janela         time.Duration
	LimiarSuspeito int
}

func ConfigTentativasPadrao() ConfigTentativas {
	return ConfigTentativas{
		MaxTentativas:  5,
		Janela:         15 * time.Minute,
		LimiarSuspeito: 3,
	}
}

// Veredito é o resultado da avaliação da janela de tentativas. ReiniciaEm só
// vem preenchido quando a tentativa foi bloqueada.
type Veredito struct {
	Permitido           bool
	Motivo              string
	TentativasRestantes int
	ReiniciaEm          time.Time
	Suspeito            bool
	JanelaNova          bool
}

// AvaliarTentativas decide sobre o registro atual da tupla, sem tocar em
// armazenamento. reg nil significa que a tupla nunca tentou. Registro com
// UltimaEm fora da janela vale como ausente e a contagem recomeça
// (JanelaNova); a remoção física da linha fica com o worker. A avaliação roda
// antes do incremento, então a submissão em curso entra na conta do limiar de
// suspeita: com limiar 3, a terceira tentativa dentro da janela já sai
// marcada como suspeita.
func AvaliarTentativas(reg *domain.TentativaVoto, agora time.Time, cfg ConfigTentativas) Veredito {
	if reg == nil || agora.Sub(reg.UltimaEm) > cfg.Janela {
		return Veredito{
			Permitido:           true,
			TentativasRestantes: cfg.MaxTentativas,
			JanelaNova:          true,
		}
	}

	if reg.Contagem >= cfg.MaxTentativas {
		return Veredito{
			Permitido:  false,
			Motivo:     "limite de tentativas atingido",
			ReiniciaEm: reg.UltimaEm.Add(cfg.Janela),
			Suspeito:   true,
		}
	}

	return Veredito{
		Permitido:           true,
		TentativasRestantes: cfg.MaxTentativas - reg.Contagem,
		Suspeito:            reg.Contagem+1 >= cfg.LimiarSuspeito,
	}
}
