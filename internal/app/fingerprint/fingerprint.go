// Package fingerprint define os componentes de impressão digital de
// navegador, a forma canônica de serialização e o hash que identifica um
// dispositivo sem guardar os sinais brutos.
//
// O coletor completo roda no navegador (static/integridade.js) e envia só o
// hash no cabeçalho X-Fingerprint. Este pacote mantém o contrato do lado do
// servidor: a mesma ordem de campos, as mesmas sentinelas e o mesmo hash,
// usado no caminho sem JavaScript e nos testes.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
)

// Sentinelas de degradação. Uma sonda que falha preenche o próprio campo e a
// coleta segue; nenhum sinal ausente derruba a coleta inteira.
const (
	SentinelaDesconhecido = "unknown"
	SentinelaSemCanvas    = "no-canvas"
	SentinelaSemWebGL     = "no-webgl"
	SentinelaErroWebGL    = "webgl-error"
	SentinelaErroAudio    = "audio-error"
	SentinelaSemFontes    = "no-fonts"
	SentinelaSemTela      = "0x0"
)

// Componentes são os sinais que entram no hash, na ordem canônica. O nível
// simples preenche os seis primeiros sinais observáveis em cabeçalhos; o
// nível completo, coletado no navegador, preenche todos.
type Componentes struct {
	UserAgent       string  `json:"userAgent"`
	Idioma          string  `json:"idioma"`
	Idiomas         string  `json:"idiomas"`
	Plataforma      string  `json:"plataforma"`
	NaoRastrear     string  `json:"naoRastrear"`
	CookiesAtivos   bool    `json:"cookiesAtivos"`
	FusoHorario     string  `json:"fusoHorario"`
	OffsetFuso      int     `json:"offsetFuso"`
	Resolucao       string  `json:"resolucao"`
	TelaDisponivel  string  `json:"telaDisponivel"`
	ProfundidadeCor int     `json:"profundidadeCor"`
	PixelRatio      float64 `json:"pixelRatio"`
	Nucleos         int     `json:"nucleos"`
	Memoria         float64 `json:"memoria"`
	ToquePontos     int     `json:"toquePontos"`
	Canvas          string  `json:"canvas"`
	WebGL           string  `json:"webgl"`
	WebGLFornecedor string  `json:"webglFornecedor"`
	Audio           string  `json:"audio"`
	Fontes          string  `json:"fontes"`
}

// Normalizar aplica as sentinelas nos campos de texto vazios. Campos
// numéricos ficam como estão; zero é valor legítimo (offset UTC, tela sem
// toque).
func Normalizar(c Componentes) Componentes {
	preencher(&c.UserAgent, SentinelaDesconhecido)
	preencher(&c.Idioma, SentinelaDesconhecido)
	preencher(&c.Idiomas, SentinelaDesconhecido)
	preencher(&c.Plataforma, SentinelaDesconhecido)
	preencher(&c.NaoRastrear, SentinelaDesconhecido)
	preencher(&c.FusoHorario, SentinelaDesconhecido)
	preencher(&c.Resolucao, SentinelaSemTela)
	preencher(&c.TelaDisponivel, SentinelaSemTela)
	preencher(&c.Canvas, SentinelaSemCanvas)
	preencher(&c.WebGL, SentinelaSemWebGL)
	preencher(&c.WebGLFornecedor, SentinelaSemWebGL)
	preencher(&c.Audio, SentinelaErroAudio)
	preencher(&c.Fontes, SentinelaSemFontes)
	return c
}

func preencher(campo *string, sentinela string) {
	if strings.TrimSpace(*campo) == "" {
		*campo = sentinela
	}
}

// Serializar devolve a forma canônica: JSON com a ordem de campos da struct,
// já normalizado. O coletor do navegador monta exatamente o mesmo texto.
func Serializar(c Componentes) string {
	b, _ := json.Marshal(Normalizar(c))
	return string(b)
}

// Hash devolve o SHA-256 da forma canônica em hex minúsculo. Idempotente:
// os mesmos componentes produzem sempre o mesmo hash.
func Hash(c Componentes) string {
	soma := sha256.Sum256([]byte(Serializar(c)))
	return hex.EncodeToString(soma[:])
}

// DoCabecalhos monta o nível simples a partir do que o servidor consegue
// observar na requisição. É o caminho dos clientes sem JavaScript; os sinais
// de navegador ficam nas sentinelas.
func DoCabecalhos(r *http.Request) Componentes {
	c := Componentes{
		UserAgent:     r.UserAgent(),
		Idiomas:       r.Header.Get("Accept-Language"),
		Plataforma:    strings.Trim(r.Header.Get("Sec-CH-UA-Platform"), `"`),
		NaoRastrear:   r.Header.Get("DNT"),
		CookiesAtivos: len(r.Cookies()) > 0,
	}
	if c.Idiomas != "" {
		idioma := strings.Split(c.Idiomas, ",")[0]
		c.Idioma = strings.TrimSpace(strings.Split(idioma, ";")[0])
	}
	return c
}

// HashValido confere se o valor recebido em X-Fingerprint tem cara de
// SHA-256 em hex. Valor fora do formato é tratado como ausente e a
// identidade degrada para somente IP.
func HashValido(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
