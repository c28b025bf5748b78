// Pacote httpapi expõe os handlers REST e traduz requisições HTTP para o serviço de votação.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/marcelojr/urna-aberta/internal/app/fingerprint"
	"github.com/marcelojr/urna-aberta/internal/app/token"
	"github.com/marcelojr/urna-aberta/internal/app/voting"
	"github.com/marcelojr/urna-aberta/internal/domain"
	"github.com/marcelojr/urna-aberta/internal/platform/antifraude"
	"github.com/marcelojr/urna-aberta/internal/platform/metrics"
)

// API empacota handlers HTTP ligados ao serviço de votação, à consulta de
// sessões e ao logger.
type API struct {
	service domain.VotingService
	sessoes domain.Sessoes
	logger  *slog.Logger
}

func New(service domain.VotingService, sessoes domain.Sessoes, logger *slog.Logger) *API {
	return &API{service: service, sessoes: sessoes, logger: logger}
}

func (a *API) Register(mux *http.ServeMux) {
	// Mantemos as rotas centralizadas para facilitar testes e reuso em servidores diferentes.
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/api/polls", a.listarEnquetes)
	mux.HandleFunc("/api/polls/", a.handleEnquete)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *API) handleEnquete(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/polls/")
	partes := strings.Split(path, "/")
	if len(partes) == 0 || partes[0] == "" {
		http.NotFound(w, r)
		return
	}

	id := domain.EnqueteID(partes[0])

	switch {
	case len(partes) == 2 && partes[1] == "vote" && r.Method == http.MethodPost:
		a.registrarVoto(w, r, id)
	case len(partes) == 2 && partes[1] == "has-voted" && r.Method == http.MethodGet:
		a.consultarVoto(w, r, id)
	case len(partes) == 2 && partes[1] == "token" && r.Method == http.MethodPost:
		a.emitirToken(w, r, id)
	case len(partes) == 2 && partes[1] == "results" && r.Method == http.MethodGet:
		a.obterResultados(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (a *API) listarEnquetes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "metodo nao suportado", http.StatusMethodNotAllowed)
		return
	}

	enquetes, err := a.service.ListarAtivas(r.Context())
	if err != nil {
		a.logger.Error("erro ao listar enquetes", "err", err)
		responderErro(w, err)
		return
	}

	responderJSON(w, http.StatusOK, enquetes)
}

type votoRequest struct {
	OptionID   string   `json:"optionId"`
	OptionIDs  []string `json:"optionIds"`
	VoteToken  string   `json:"voteToken"`
	TimeOnPage *float64 `json:"timeOnPage"`
}

// selecao aceita tanto o campo único quanto a lista; a lista vence quando as
// duas formas vierem preenchidas.
func (req votoRequest) selecao() []domain.OpcaoID {
	if len(req.OptionIDs) > 0 {
		opcoes := make([]domain.OpcaoID, len(req.OptionIDs))
		for i, id := range req.OptionIDs {
			opcoes[i] = domain.OpcaoID(id)
		}
		return opcoes
	}
	if req.OptionID != "" {
		return []domain.OpcaoID{domain.OpcaoID(req.OptionID)}
	}
	return nil
}

type votoResponse struct {
	Status    string           `json:"status"`
	OptionIDs []domain.OpcaoID `json:"optionIds"`
}

func (a *API) registrarVoto(w http.ResponseWriter, r *http.Request, id domain.EnqueteID) {
	var req votoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.ObserveVoteRequest("invalid_payload")
		a.logger.Warn("payload invalido ao registrar voto", "err", err)
		responderJSON(w, http.StatusBadRequest, map[string]string{"message": "payload invalido"})
		return
	}

	usuarioID, err := a.usuarioDaSessao(r)
	if err != nil {
		a.logger.Error("falha ao consultar sessao", "err", err)
		responderErro(w, err)
		return
	}

	// Medição negativa de tempo na página vale como ausente, igual ao
	// formulário SSR.
	tempoNaPagina := req.TimeOnPage
	if tempoNaPagina != nil && *tempoNaPagina < 0 {
		tempoNaPagina = nil
	}

	params := domain.VotarParams{
		EnqueteID:       id,
		Opcoes:          req.selecao(),
		UsuarioID:       usuarioID,
		OrigemIP:        clientIP(r),
		UserAgent:       r.UserAgent(),
		FingerprintHash: fingerprintDoCabecalho(r),
		Token:           req.VoteToken,
		TempoNaPagina:   tempoNaPagina,
	}

	resultado, err := a.service.Votar(r.Context(), params)
	if err != nil {
		status := statusFromError(err)
		metrics.ObserveVoteRequest(status)
		a.logger.Warn("voto recusado", "err", err, "enquete", id, "status", status)
		responderErro(w, err)
		return
	}

	metrics.ObserveVoteRequest("accepted")

	opcoes := make([]domain.OpcaoID, len(resultado.Votos))
	for i, v := range resultado.Votos {
		opcoes[i] = v.OpcaoID
	}

	httpStatus := http.StatusOK
	corpo := votoResponse{Status: "atualizado", OptionIDs: opcoes}
	if resultado.Novo {
		httpStatus = http.StatusCreated
		corpo.Status = "registrado"
	}

	responderJSON(w, httpStatus, corpo)
	a.logger.Info("voto processado", "enquete", id, "novo", resultado.Novo, "opcoes", len(opcoes))
}

type jaVotouResponse struct {
	HasVoted  bool             `json:"hasVoted"`
	OptionIDs []domain.OpcaoID `json:"optionIds,omitempty"`
}

func (a *API) consultarVoto(w http.ResponseWriter, r *http.Request, id domain.EnqueteID) {
	usuarioID, err := a.usuarioDaSessao(r)
	if err != nil {
		a.logger.Error("falha ao consultar sessao", "err", err)
		responderErro(w, err)
		return
	}

	status, err := a.service.JaVotou(r.Context(), id, usuarioID, clientIP(r), fingerprintDoCabecalho(r))
	if err != nil {
		a.logger.Warn("erro ao consultar voto", "err", err, "enquete", id)
		responderErro(w, err)
		return
	}

	responderJSON(w, http.StatusOK, jaVotouResponse{HasVoted: status.JaVotou, OptionIDs: status.Opcoes})
}

type tokenRequest struct {
	Fingerprint string `json:"fingerprint"`
}

type tokenResponse struct {
	VoteToken string `json:"voteToken"`
}

func (a *API) emitirToken(w http.ResponseWriter, r *http.Request, id domain.EnqueteID) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		responderJSON(w, http.StatusBadRequest, map[string]string{"message": "payload invalido"})
		return
	}

	fp := req.Fingerprint
	if !fingerprint.HashValido(fp) {
		fp = fingerprintDoCabecalho(r)
	}

	serializado, err := a.service.EmitirToken(r.Context(), id, fp)
	if err != nil {
		a.logger.Warn("erro ao emitir token", "err", err, "enquete", id)
		responderErro(w, err)
		return
	}

	responderJSON(w, http.StatusOK, tokenResponse{VoteToken: serializado})
}

func (a *API) obterResultados(w http.ResponseWriter, r *http.Request, id domain.EnqueteID) {
	parciais, err := a.service.Parciais(r.Context(), id)
	if err != nil {
		a.logger.Warn("erro ao obter parciais", "err", err, "enquete", id)
		responderErro(w, err)
		return
	}

	responderJSON(w, http.StatusOK, parciais)
}

// usuarioDaSessao resolve o Bearer token em usuário via Redis. Sessão ausente,
// desconhecida ou vencida vale como visitante anônimo; só falha de
// infraestrutura sobe como erro.
func (a *API) usuarioDaSessao(r *http.Request) (domain.UsuarioID, error) {
	const prefixo = "Bearer "
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, prefixo) || a.sessoes == nil {
		return "", nil
	}

	usuario, err := a.sessoes.Usuario(r.Context(), strings.TrimSpace(strings.TrimPrefix(auth, prefixo)))
	if errors.Is(err, domain.ErrNaoEncontrado) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return usuario, nil
}

// fingerprintDoCabecalho valida o X-Fingerprint; hash fora do formato vale
// como ausente e a identidade degrada para fraca.
func fingerprintDoCabecalho(r *http.Request) string {
	fp := r.Header.Get("X-Fingerprint")
	if !fingerprint.HashValido(fp) {
		return ""
	}
	return fp
}

// clientIP usa o primeiro salto do X-Forwarded-For quando presente; senão o
// host do RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func responderJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func responderErro(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	corpo := map[string]any{"message": err.Error()}

	var limite *voting.ErroLimite
	switch {
	case errors.As(err, &limite):
		status = http.StatusTooManyRequests
		corpo["resetAt"] = limite.ReiniciaEm.UTC().Format(time.RFC3339)
		segundos := int(time.Until(limite.ReiniciaEm).Round(time.Second).Seconds())
		if segundos < 0 {
			segundos = 0
		}
		w.Header().Set("Retry-After", strconv.Itoa(segundos))
	case errors.Is(err, voting.ErrLimiteTentativas):
		status = http.StatusTooManyRequests
	case errors.Is(err, voting.ErrEnqueteNaoEncontrada):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNaoAutenticado):
		status = http.StatusUnauthorized
	case errors.Is(err, voting.ErrEnqueteEncerrada):
		status = http.StatusConflict
	case errors.Is(err, voting.ErrSelecaoInvalida),
		errors.Is(err, voting.ErrEnqueteInvalida),
		errors.Is(err, voting.ErrJaVotou),
		errors.Is(err, voting.ErrTokenObrigatorio),
		errors.Is(err, token.ErrTokenMalformado),
		errors.Is(err, token.ErrTokenExpirado),
		errors.Is(err, token.ErrAssinaturaInvalida),
		errors.Is(err, token.ErrTokenReutilizado),
		errors.Is(err, antifraude.ErrComportamentoSuspeito),
		errors.Is(err, antifraude.ErrMuitoRapido),
		errors.Is(err, antifraude.ErrIntervaloCurto):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrDuplicado):
		// Conflito de unicidade que chegar cru até aqui é voto repetido da
		// mesma identidade, nunca 500.
		status = http.StatusBadRequest
		corpo["message"] = voting.ErrJaVotou.Error()
	}

	responderJSON(w, status, corpo)
}

func statusFromError(err error) string {
	switch {
	case errors.Is(err, voting.ErrLimiteTentativas):
		return "rate_limited"
	case errors.Is(err, voting.ErrEnqueteEncerrada):
		return "closed"
	case errors.Is(err, voting.ErrEnqueteNaoEncontrada):
		return "not_found"
	case errors.Is(err, domain.ErrNaoAutenticado):
		return "unauthenticated"
	case errors.Is(err, voting.ErrJaVotou),
		errors.Is(err, domain.ErrDuplicado):
		return "already_voted"
	case errors.Is(err, voting.ErrSelecaoInvalida):
		return "invalid"
	case errors.Is(err, voting.ErrTokenObrigatorio),
		errors.Is(err, token.ErrTokenMalformado),
		errors.Is(err, token.ErrTokenExpirado),
		errors.Is(err, token.ErrAssinaturaInvalida),
		errors.Is(err, token.ErrTokenReutilizado):
		return "token_rejected"
	case errors.Is(err, antifraude.ErrComportamentoSuspeito),
		errors.Is(err, antifraude.ErrMuitoRapido),
		errors.Is(err, antifraude.ErrIntervaloCurto):
		return "behavior"
	default:
		return "error"
	}
}
