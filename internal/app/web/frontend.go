package web

// Pacote web centraliza a camada de apresentação HTML (SSR) e o script de
// integridade servido ao navegador. O formulário funciona sem JavaScript:
// o fingerprint simples sai dos cabeçalhos e o token de voto vem embutido na
// página. Com JavaScript, o coletor completo assume e fala com a API JSON.

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/marcelojr/urna-aberta/internal/app/fingerprint"
	"github.com/marcelojr/urna-aberta/internal/app/token"
	"github.com/marcelojr/urna-aberta/internal/app/voting"
	"github.com/marcelojr/urna-aberta/internal/domain"
	"github.com/marcelojr/urna-aberta/internal/platform/antifraude"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Frontend renderiza as telas de voto e de resultados e serve os arquivos
// estáticos embutidos.
type Frontend struct {
	templates *template.Template
	service   domain.VotingService
}

// New carrega os templates embutidos e registra as dependências necessárias.
func New(service domain.VotingService) (*Frontend, error) {
	if service == nil {
		return nil, fmt.Errorf("frontend: serviço de votação inexistente")
	}
	tmpl, err := template.ParseFS(templateFS,
		"templates/layout.gohtml",
		"templates/vote.gohtml",
		"templates/resultados.gohtml",
	)
	if err != nil {
		return nil, err
	}

	for _, name := range []string{"vote_body", "resultados_body", "layout"} {
		if tmpl.Lookup(name) == nil {
			return nil, fmt.Errorf("frontend: template %s não encontrado", name)
		}
	}

	return &Frontend{templates: tmpl, service: service}, nil
}

// Register expõe as rotas HTML e os estáticos na mesma mux da API.
func (f *Frontend) Register(mux *http.ServeMux) {
	mux.HandleFunc("/", f.handleIndex)
	mux.HandleFunc("/votar", f.handleVotar)
	mux.HandleFunc("/resultados", f.handleResultados)
	mux.Handle("/static/", http.FileServer(http.FS(staticFS)))
}

func (f *Frontend) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	f.render(w, "vote_body", f.paginaDeVotacao(r, ""))
}

func (f *Frontend) handleVotar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if err := r.ParseForm(); err != nil {
		f.render(w, "vote_body", f.paginaDeVotacao(r, "Não consegui ler os dados enviados. Tente novamente."))
		return
	}

	enqueteID := domain.EnqueteID(strings.TrimSpace(r.PostFormValue("enquete_id")))
	opcoes := make([]domain.OpcaoID, 0, len(r.PostForm["opcao_id"]))
	for _, bruto := range r.PostForm["opcao_id"] {
		if id := strings.TrimSpace(bruto); id != "" {
			opcoes = append(opcoes, domain.OpcaoID(id))
		}
	}

	if enqueteID == "" || len(opcoes) == 0 {
		f.render(w, "vote_body", f.paginaDeVotacao(r, "Selecione uma opção para votar."))
		return
	}

	params := domain.VotarParams{
		EnqueteID:       enqueteID,
		Opcoes:          opcoes,
		OrigemIP:        clientIP(r),
		UserAgent:       r.UserAgent(),
		FingerprintHash: fingerprint.Hash(fingerprint.DoCabecalhos(r)),
		Token:           strings.TrimSpace(r.PostFormValue("vote_token")),
		TempoNaPagina:   tempoDaPagina(r),
	}

	if _, err := f.service.Votar(r.Context(), params); err != nil {
		f.render(w, "vote_body", f.paginaDeVotacao(r, translateVoteError(err)))
		return
	}

	http.Redirect(w, r, "/resultados?enquete="+url.QueryEscape(string(enqueteID))+"&status=success", http.StatusSeeOther)
}

func (f *Frontend) handleResultados(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	enqueteID := domain.EnqueteID(strings.TrimSpace(r.URL.Query().Get("enquete")))
	data := paginaResultados{}

	if status := r.URL.Query().Get("status"); status == "success" {
		data.Message = "Voto registrado com sucesso!"
	}

	if enqueteID == "" {
		data.Error = "Informe qual enquete deseja acompanhar."
		f.render(w, "resultados_body", data)
		return
	}

	parciais, err := f.service.Parciais(ctx, enqueteID)
	if err != nil {
		data.Error = translateVoteError(err)
		f.render(w, "resultados_body", data)
		return
	}

	enquetes, err := f.service.ListarAtivas(ctx)
	if err != nil {
		// seguimos sem interromper; usaremos os IDs caso não consiga os textos.
		enquetes = nil
	}

	pergunta, textos := identifyEnquete(enquetes, enqueteID)
	if pergunta == "" {
		pergunta = string(enqueteID)
	}
	data.EnqueteID = string(enqueteID)
	data.Pergunta = pergunta

	totalGeral := int64(0)
	for _, parcial := range parciais {
		totalGeral += parcial.Total
		texto := textos[parcial.OpcaoID]
		if texto == "" {
			texto = string(parcial.OpcaoID)
		}
		data.Opcoes = append(data.Opcoes, resultadoOpcaoView{
			Texto:        texto,
			TotalDisplay: displayInt(parcial.Total),
			Percent:      formatPercent(parcial.Percentual),
			Largura:      int(math.Round(parcial.Percentual)),
		})
	}
	data.TotalDisplay = displayInt(totalGeral)

	f.render(w, "resultados_body", data)
}

// paginaDeVotacao monta a tela de voto completa: enquetes abertas, o token de
// voto embutido por enquete (amarrado ao fingerprint simples desta requisição)
// e a marcação do que a identidade já votou.
func (f *Frontend) paginaDeVotacao(r *http.Request, mensagemErro string) paginaVotacao {
	ctx := r.Context()
	data := paginaVotacao{Error: mensagemErro}

	enquetes, err := f.service.ListarAtivas(ctx)
	if err != nil {
		if data.Error == "" {
			data.Error = "Não foi possível carregar as enquetes abertas."
		}
		return data
	}

	fpHash := fingerprint.Hash(fingerprint.DoCabecalhos(r))
	origem := clientIP(r)

	for _, e := range enquetes {
		view := enqueteView{
			ID:                string(e.ID),
			Pergunta:          e.Pergunta,
			Descricao:         e.Descricao,
			Inicio:            formatDateTime(e.Inicio),
			Fim:               formatDateTime(e.Fim),
			MultiplaEscolha:   e.MultiplaEscolha,
			PermitirAlteracao: e.PermitirAlteracao,
		}

		// Token embutido para o caminho sem JavaScript; falha aqui só degrada
		// a página, o portão do serviço decide na submissão.
		if tok, err := f.service.EmitirToken(ctx, e.ID, fpHash); err == nil {
			view.VoteToken = tok
		}

		marcadas := map[domain.OpcaoID]bool{}
		if status, err := f.service.JaVotou(ctx, e.ID, "", origem, fpHash); err == nil {
			view.JaVotou = status.JaVotou
			for _, op := range status.Opcoes {
				marcadas[op] = true
			}
		}

		for _, op := range e.Opcoes {
			view.Opcoes = append(view.Opcoes, opcaoView{
				ID:      string(op.ID),
				Texto:   op.Texto,
				Marcada: marcadas[op.ID],
			})
		}

		data.Enquetes = append(data.Enquetes, view)
	}

	return data
}

func (f *Frontend) render(w http.ResponseWriter, tmpl string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	var content strings.Builder
	if err := f.templates.ExecuteTemplate(&content, tmpl, data); err != nil {
		http.Error(w, "erro ao montar a página", http.StatusInternalServerError)
		return
	}

	page := struct {
		Title   string
		Content template.HTML
	}{
		Title:   pageTitle(tmpl),
		Content: template.HTML(content.String()),
	}

	if err := f.templates.ExecuteTemplate(w, "layout", page); err != nil {
		http.Error(w, "erro ao renderizar página", http.StatusInternalServerError)
	}
}

func pageTitle(body string) string {
	switch body {
	case "vote_body":
		return "Votação"
	case "resultados_body":
		return "Resultados"
	default:
		return "Urna Aberta"
	}
}

type paginaVotacao struct {
	Enquetes []enqueteView
	Error    string
}

type enqueteView struct {
	ID                string
	Pergunta          string
	Descricao         string
	Inicio            string
	Fim               string
	MultiplaEscolha   bool
	PermitirAlteracao bool
	JaVotou           bool
	VoteToken         string
	Opcoes            []opcaoView
}

type opcaoView struct {
	ID      string
	Texto   string
	Marcada bool
}

type paginaResultados struct {
	EnqueteID    string
	Pergunta     string
	Opcoes       []resultadoOpcaoView
	TotalDisplay string
	Message      string
	Error        string
}

type resultadoOpcaoView struct {
	Texto        string
	TotalDisplay string
	Percent      string
	Largura      int
}

func identifyEnquete(enquetes []domain.Enquete, id domain.EnqueteID) (string, map[domain.OpcaoID]string) {
	textos := make(map[domain.OpcaoID]string)
	for _, e := range enquetes {
		if e.ID == id {
			for _, op := range e.Opcoes {
				textos[op.ID] = op.Texto
			}
			return e.Pergunta, textos
		}
	}
	return "", textos
}

func translateVoteError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, voting.ErrLimiteTentativas):
		return "Você atingiu o limite de tentativas. Aguarde alguns minutos e tente novamente."
	case errors.Is(err, voting.ErrEnqueteEncerrada):
		return "Essa enquete já foi encerrada."
	case errors.Is(err, voting.ErrEnqueteNaoEncontrada):
		return "Enquete não encontrada."
	case errors.Is(err, voting.ErrSelecaoInvalida):
		return "Seleção de opções inválida. Confira o que marcou e tente de novo."
	case errors.Is(err, voting.ErrJaVotou):
		return "Essa enquete não permite trocar o voto."
	case errors.Is(err, domain.ErrNaoAutenticado):
		return "Essa enquete exige login para votar."
	case errors.Is(err, voting.ErrTokenObrigatorio),
		errors.Is(err, token.ErrTokenExpirado),
		errors.Is(err, token.ErrTokenMalformado),
		errors.Is(err, token.ErrAssinaturaInvalida),
		errors.Is(err, token.ErrTokenReutilizado):
		return "Sua sessão de voto venceu. Recarregue a página e vote de novo."
	case errors.Is(err, antifraude.ErrComportamentoSuspeito),
		errors.Is(err, antifraude.ErrMuitoRapido),
		errors.Is(err, antifraude.ErrIntervaloCurto):
		return "Calma! Espere um instante antes de enviar o voto."
	default:
		return "Não foi possível registrar o voto. Tente novamente."
	}
}

func tempoDaPagina(r *http.Request) *float64 {
	bruto := strings.TrimSpace(r.PostFormValue("tempo_na_pagina"))
	if bruto == "" {
		return nil
	}
	v, err := strconv.ParseFloat(bruto, 64)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}

func clientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		parts := strings.Split(xf, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

func formatPercent(value float64) string {
	return fmt.Sprintf("%.2f%%", value)
}

func displayInt(v int64) string {
	return fmt.Sprintf("%d", v)
}

func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02/01/2006 15:04")
}
