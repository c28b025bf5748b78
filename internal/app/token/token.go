// Package token emite e valida o token de voto: uma prova barata de que a
// submissão veio de uma página carregada há pouco, amarrada à enquete e ao
// fingerprint do navegador. Não é a fronteira de confiança; só encarece
// replay e script direto na API.
package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/marcelojr/urna-aberta/internal/domain"
)

var (
	ErrTokenMalformado    = errors.New("token malformado")
	ErrTokenExpirado      = errors.New("token expirado")
	ErrAssinaturaInvalida = errors.New("assinatura do token invalida")
	ErrTokenReutilizado   = errors.New("token ja utilizado")
)

const (
	// ValidadePadrao é a janela de frescor do token.
	ValidadePadrao = 5 * time.Minute

	// toleranciaFuturo absorve relógio de cliente adiantado.
	toleranciaFuturo = time.Minute
)

// Token é o payload assinado que acompanha a submissão. Os nomes JSON são
// contrato com o script da página; mudar qualquer um quebra clientes no ar.
type Token struct {
	EnqueteID   domain.EnqueteID `json:"pollId"`
	Fingerprint string           `json:"fingerprint"`
	Timestamp   int64            `json:"timestamp"`
	Nonce       string           `json:"nonce"`
	Assinatura  string           `json:"signature"`
}

// Emissor assina com HMAC-SHA256 sobre a carga canônica
// "pollId:fingerprint:timestamp:nonce". A validação aceita opcionalmente o
// token autoassinado pelo navegador (SHA-256 puro da carga), emitido quando a
// página não alcança o endpoint de emissão.
type Emissor struct {
	segredo             []byte
	clock               domain.Clock
	validade            time.Duration
	aceitarAutoAssinado bool
}

func NewEmissor(segredo []byte, clock domain.Clock, validade time.Duration, aceitarAutoAssinado bool) *Emissor {
	if validade <= 0 {
		validade = ValidadePadrao
	}
	return &Emissor{
		segredo:             segredo,
		clock:               clock,
		validade:            validade,
		aceitarAutoAssinado: aceitarAutoAssinado,
	}
}

// Validade expõe a janela de frescor para quem precisa alinhar TTLs, como a
// marca de nonce usado.
func (e *Emissor) Validade() time.Duration {
	return e.validade
}

// ChaveAleatoria gera um segredo de 32 bytes para subir sem VOTE_TOKEN_SECRET
// configurado. Tokens emitidos assim não valem entre instâncias nem depois de
// um restart.
func ChaveAleatoria() ([]byte, error) {
	chave := make([]byte, 32)
	if _, err := rand.Read(chave); err != nil {
		return nil, fmt.Errorf("token: gerar chave: %w", err)
	}
	return chave, nil
}

// Emitir monta e assina um token novo para a enquete e o fingerprint dados.
// O nonce tem 128 bits de acaso; o consumo único fica com o validador.
func (e *Emissor) Emitir(id domain.EnqueteID, fingerprint string) (Token, error) {
	nonce, err := novoNonce()
	if err != nil {
		return Token{}, err
	}
	t := Token{
		EnqueteID:   id,
		Fingerprint: fingerprint,
		Timestamp:   e.clock.Agora().UnixMilli(),
		Nonce:       nonce,
	}
	t.Assinatura = e.assinar(t)
	return t, nil
}

// Validar confere frescor e assinatura, nessa ordem. Expiração vence empate
// com assinatura ruim para o chamador poder responder "pegue outro token".
func (e *Emissor) Validar(t Token) error {
	agora := e.clock.Agora()
	emitido := time.UnixMilli(t.Timestamp)
	if agora.Sub(emitido) > e.validade {
		return ErrTokenExpirado
	}
	if emitido.Sub(agora) > toleranciaFuturo {
		return ErrTokenExpirado
	}

	esperada := []byte(e.assinar(t))
	if hmac.Equal([]byte(t.Assinatura), esperada) {
		return nil
	}
	if e.aceitarAutoAssinado {
		auto := []byte(AutoAssinatura(t))
		if hmac.Equal([]byte(t.Assinatura), auto) {
			return nil
		}
	}
	return ErrAssinaturaInvalida
}

// Serializar devolve base64(JSON), o formato que trafega no corpo da
// requisição.
func Serializar(t Token) string {
	b, _ := json.Marshal(t)
	return base64.StdEncoding.EncodeToString(b)
}

// Deserializar é fechada para falha: base64 quebrado, JSON quebrado ou campo
// obrigatório ausente devolvem ErrTokenMalformado, nunca pânico.
func Deserializar(s string) (Token, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Token{}, ErrTokenMalformado
	}
	var t Token
	if err := json.Unmarshal(b, &t); err != nil {
		return Token{}, ErrTokenMalformado
	}
	if t.EnqueteID == "" || t.Nonce == "" || t.Assinatura == "" || t.Timestamp <= 0 {
		return Token{}, ErrTokenMalformado
	}
	return t, nil
}

// AutoAssinatura é a assinatura fraca que o navegador consegue produzir
// sozinho: SHA-256 puro da carga canônica, sem segredo.
func AutoAssinatura(t Token) string {
	soma := sha256.Sum256([]byte(carga(t)))
	return hex.EncodeToString(soma[:])
}

func (e *Emissor) assinar(t Token) string {
	mac := hmac.New(sha256.New, e.segredo)
	mac.Write([]byte(carga(t)))
	return hex.EncodeToString(mac.Sum(nil))
}

func carga(t Token) string {
	return fmt.Sprintf("%s:%s:%d:%s", t.EnqueteID, t.Fingerprint, t.Timestamp, t.Nonce)
}

func novoNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("token: gerar nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}
