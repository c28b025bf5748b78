package domain

type TipoIdentidade string

const (
	IdentidadeUsuario      TipoIdentidade = "usuario"
	IdentidadeAnonimaForte TipoIdentidade = "anonima_forte"
	IdentidadeAnonimaFraca TipoIdentidade = "anonima_fraca"
)

// Identidade é a chave de deduplicação de um voto, resolvida uma única vez
// por submissão e usada igual em todas as etapas seguintes.
type Identidade struct {
	Tipo            TipoIdentidade
	UsuarioID       UsuarioID
	OrigemIP        string
	FingerprintHash string
}

// ResolverIdentidade aplica a política da enquete. Usuário autenticado sempre
// vence, mesmo em enquete anônima. Enquete que exige login sem usuário
// presente devolve ErrNaoAutenticado. Voto anônimo usa IP + fingerprint
// quando o hash veio no cabeçalho e degrada para somente IP quando não veio.
func ResolverIdentidade(e Enquete, usuarioID UsuarioID, origemIP, fingerprintHash string) (Identidade, error) {
	if usuarioID != "" {
		return Identidade{
			Tipo:            IdentidadeUsuario,
			UsuarioID:       usuarioID,
			OrigemIP:        origemIP,
			FingerprintHash: fingerprintHash,
		}, nil
	}
	if !e.Anonima {
		return Identidade{}, ErrNaoAutenticado
	}
	if fingerprintHash != "" {
		return Identidade{
			Tipo:            IdentidadeAnonimaForte,
			OrigemIP:        origemIP,
			FingerprintHash: fingerprintHash,
		}, nil
	}
	return Identidade{Tipo: IdentidadeAnonimaFraca, OrigemIP: origemIP}, nil
}

// Autenticada informa se a identidade pertence a um usuário logado.
func (i Identidade) Autenticada() bool { return i.Tipo == IdentidadeUsuario }
