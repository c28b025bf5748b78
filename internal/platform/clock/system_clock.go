// Pacote clock isola a leitura de hora atrás da porta domain.Clock. Janela de
// tentativas, validade de token e abertura de enquete comparam instantes, e os
// testes só conseguem cravar esses cenários trocando o relógio.
package clock

import "time"

// SystemClock lê o relógio da máquina sempre em UTC, então os instantes
// gravados pela api e varridos pelo worker são comparáveis entre si.
type SystemClock struct{}

func NewSystemClock() SystemClock {
	return SystemClock{}
}

func (SystemClock) Agora() time.Time {
	return time.Now().UTC()
}
