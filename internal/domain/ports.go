package domain

import (
	"context"
	"time"
)

type EnqueteRepository interface {
	Create(ctx context.Context, e Enquete) error
	Update(ctx context.Context, e Enquete) error
	FindByID(ctx context.Context, id EnqueteID) (Enquete, error)
	ListAtivas(ctx context.Context, agora time.Time) ([]Enquete, error)
}

type OpcaoRepository interface {
	BulkCreate(ctx context.Context, enqueteID EnqueteID, opcoes []Opcao) error
	ListByEnquete(ctx context.Context, enqueteID EnqueteID) ([]Opcao, error)
}

type VotoRepository interface {
	Registrar(ctx context.Context, votos []Voto) error
	Substituir(ctx context.Context, enqueteID EnqueteID, identidade Identidade, votos []Voto) error
	AtualizarOpcao(ctx context.Context, id VotoID, opcaoID OpcaoID) error
	BuscarPorIdentidade(ctx context.Context, enqueteID EnqueteID, identidade Identidade) ([]Voto, error)
	TotalPorOpcao(ctx context.Context, enqueteID EnqueteID) (map[OpcaoID]int64, error)
}

type TentativaRepository interface {
	Obter(ctx context.Context, enqueteID EnqueteID, origemIP, fingerprintHash string) (TentativaVoto, error)
	Incrementar(ctx context.Context, enqueteID EnqueteID, origemIP, fingerprintHash string, agora time.Time, reiniciar bool) (TentativaVoto, error)
	Reiniciar(ctx context.Context, enqueteID EnqueteID, origemIP, fingerprintHash string) error
	RemoverExpiradas(ctx context.Context, antesDe time.Time) (int64, error)
}

// Contador mantém as parciais quentes: incrementado a cada voto aceito, lido
// em lote na exibição de resultados.
type Contador interface {
	Incrementar(ctx context.Context, chave string, delta int64) (int64, error)
	ObterTodos(ctx context.Context, chaves []string) (map[string]int64, error)
}

// Nonces garante uso único de nonce de token dentro da validade.
type Nonces interface {
	Consumir(ctx context.Context, nonce string, validade time.Duration) (bool, error)
}

type Sessoes interface {
	Usuario(ctx context.Context, token string) (UsuarioID, error)
}

// Antifraude é a barreira grossa por IP, avaliada antes do controle fino de
// tentativas.
type Antifraude interface {
	Validar(ctx context.Context, enqueteID EnqueteID, origemIP string) error
}

type Clock interface {
	Agora() time.Time
}

type VotingService interface {
	Votar(ctx context.Context, p VotarParams) (ResultadoVoto, error)
	JaVotou(ctx context.Context, id EnqueteID, usuarioID UsuarioID, origemIP, fingerprintHash string) (StatusVoto, error)
	EmitirToken(ctx context.Context, id EnqueteID, fingerprintHash string) (string, error)
	ListarAtivas(ctx context.Context) ([]Enquete, error)
	Parciais(ctx context.Context, id EnqueteID) ([]Parcial, error)
	CriarEnquete(ctx context.Context, e Enquete, opcoes []Opcao) (Enquete, error)
}
