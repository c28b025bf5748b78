package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/marcelojr/urna-aberta/internal/app/token"
	"github.com/marcelojr/urna-aberta/internal/app/voting"
	"github.com/marcelojr/urna-aberta/internal/domain"
)

const (
	enqueteTesteID = "01HENQUETEXXXXXXXXXXXXXXXX"
	opcaoTesteID   = "01HOPCAOXXXXXXXXXXXXXXXXXX"
	hashTeste      = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
)

// MockVotingService implementa a interface do serviço de votação para testes
type MockVotingService struct {
	mock.Mock
}

func (m *MockVotingService) Votar(ctx context.Context, p domain.VotarParams) (domain.ResultadoVoto, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(domain.ResultadoVoto), args.Error(1)
}

func (m *MockVotingService) JaVotou(ctx context.Context, id domain.EnqueteID, usuarioID domain.UsuarioID, origemIP, fingerprintHash string) (domain.StatusVoto, error) {
	args := m.Called(ctx, id, usuarioID, origemIP, fingerprintHash)
	return args.Get(0).(domain.StatusVoto), args.Error(1)
}

func (m *MockVotingService) EmitirToken(ctx context.Context, id domain.EnqueteID, fingerprintHash string) (string, error) {
	args := m.Called(ctx, id, fingerprintHash)
	return args.String(0), args.Error(1)
}

func (m *MockVotingService) ListarAtivas(ctx context.Context) ([]domain.Enquete, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Enquete), args.Error(1)
}

func (m *MockVotingService) Parciais(ctx context.Context, id domain.EnqueteID) ([]domain.Parcial, error) {
	args := m.Called(ctx, id)
	return args.Get(0).([]domain.Parcial), args.Error(1)
}

func (m *MockVotingService) CriarEnquete(ctx context.Context, e domain.Enquete, opcoes []domain.Opcao) (domain.Enquete, error) {
	args := m.Called(ctx, e, opcoes)
	return args.Get(0).(domain.Enquete), args.Error(1)
}

// MockSessoes implementa a consulta de sessões para testes
type MockSessoes struct {
	mock.Mock
}

func (m *MockSessoes) Usuario(ctx context.Context, token string) (domain.UsuarioID, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(domain.UsuarioID), args.Error(1)
}

// setupAPI cria uma instância da API com serviço e sessões mockados
func setupAPI(t *testing.T) (*API, *MockVotingService, *MockSessoes) {
	mockService := new(MockVotingService)
	mockSessoes := new(MockSessoes)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{}))
	api := New(mockService, mockSessoes, logger)

	t.Cleanup(func() {
		mockService.AssertExpectations(t)
		mockSessoes.AssertExpectations(t)
	})

	return api, mockService, mockSessoes
}

func requisicaoDeVoto(payload string) *http.Request {
	req := httptest.NewRequest("POST", "/api/polls/"+enqueteTesteID+"/vote", bytes.NewReader([]byte(payload)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Fingerprint", hashTeste)
	return req
}

// === TESTES GET /healthz ===

func TestHandleHealthz_QuandoSolicitado_DeveRetornar200OK(t *testing.T) {
	api, _, _ := setupAPI(t)

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()

	api.handleHealthz(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

// === TESTES GET /api/polls ===

func TestListarEnquetes_QuandoExistemAtivas_DeveRetornarLista(t *testing.T) {
	api, mockService, _ := setupAPI(t)

	enquetes := []domain.Enquete{
		{ID: "01HXXXXXXXXXXXXXXXXXXXXX", Pergunta: "Qual projeto?"},
		{ID: "01HXXXXXXXXXXXXXXXXXXXXY", Pergunta: "Qual horário?"},
	}
	mockService.On("ListarAtivas", mock.Anything).Return(enquetes, nil)

	req := httptest.NewRequest("GET", "/api/polls", nil)
	w := httptest.NewRecorder()

	api.listarEnquetes(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response []domain.Enquete
	err := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)
	assert.Len(t, response, 2)
	assert.Equal(t, "Qual projeto?", response[0].Pergunta)
}

func TestListarEnquetes_QuandoServicoFalha_DeveRetornar500(t *testing.T) {
	api, mockService, _ := setupAPI(t)

	mockService.On("ListarAtivas", mock.Anything).Return([]domain.Enquete(nil), assert.AnError)

	req := httptest.NewRequest("GET", "/api/polls", nil)
	w := httptest.NewRecorder()

	api.listarEnquetes(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var response map[string]any
	err := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)
	assert.Contains(t, response, "message")
}

func TestListarEnquetes_QuandoMetodoNaoSuportado_DeveRetornar405(t *testing.T) {
	api, _, _ := setupAPI(t)

	req := httptest.NewRequest("POST", "/api/polls", nil)
	w := httptest.NewRecorder()

	api.listarEnquetes(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

// === TESTES POST /api/polls/{id}/vote ===

func TestRegistrarVoto_QuandoVotoNovo_DeveRetornar201(t *testing.T) {
	api, mockService, _ := setupAPI(t)

	payload := `{"optionId":"` + opcaoTesteID + `","voteToken":"tok-serializado","timeOnPage":12.5}`
	mockService.On("Votar", mock.Anything, mock.MatchedBy(func(p domain.VotarParams) bool {
		return p.EnqueteID == enqueteTesteID &&
			len(p.Opcoes) == 1 && p.Opcoes[0] == opcaoTesteID &&
			p.FingerprintHash == hashTeste &&
			p.Token == "tok-serializado" &&
			p.TempoNaPagina != nil && *p.TempoNaPagina == 12.5
	})).Return(domain.ResultadoVoto{
		Novo:  true,
		Votos: []domain.Voto{{ID: "01HVOTOXXXXXXXXXXXXXXXXXXX", OpcaoID: opcaoTesteID}},
	}, nil)

	w := httptest.NewRecorder()
	api.handleEnquete(w, requisicaoDeVoto(payload))

	assert.Equal(t, http.StatusCreated, w.Code)

	var response votoResponse
	err := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)
	assert.Equal(t, "registrado", response.Status)
	require.Len(t, response.OptionIDs, 1)
	assert.Equal(t, domain.OpcaoID(opcaoTesteID), response.OptionIDs[0])
}

func TestRegistrarVoto_QuandoVotoAlterado_DeveRetornar200(t *testing.T) {
	api, mockService, _ := setupAPI(t)

	payload := `{"optionId":"` + opcaoTesteID + `","voteToken":"tok-serializado"}`
	mockService.On("Votar", mock.Anything, mock.Anything).Return(domain.ResultadoVoto{
		Novo:  false,
		Votos: []domain.Voto{{ID: "01HVOTOXXXXXXXXXXXXXXXXXXX", OpcaoID: opcaoTesteID}},
	}, nil)

	w := httptest.NewRecorder()
	api.handleEnquete(w, requisicaoDeVoto(payload))

	assert.Equal(t, http.StatusOK, w.Code)

	var response votoResponse
	err := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)
	assert.Equal(t, "atualizado", response.Status)
}

func TestRegistrarVoto_QuandoMultiplaEscolha_DevePassarTodasAsOpcoes(t *testing.T) {
	api, mockService, _ := setupAPI(t)

	payload := `{"optionIds":["op-a","op-b"],"voteToken":"tok-serializado"}`
	mockService.On("Votar", mock.Anything, mock.MatchedBy(func(p domain.VotarParams) bool {
		return len(p.Opcoes) == 2 && p.Opcoes[0] == "op-a" && p.Opcoes[1] == "op-b"
	})).Return(domain.ResultadoVoto{
		Novo: true,
		Votos: []domain.Voto{
			{OpcaoID: "op-a"},
			{OpcaoID: "op-b"},
		},
	}, nil)

	w := httptest.NewRecorder()
	api.handleEnquete(w, requisicaoDeVoto(payload))

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRegistrarVoto_QuandoPayloadInvalido_DeveRetornar400(t *testing.T) {
	api, _, _ := setupAPI(t)

	w := httptest.NewRecorder()
	api.handleEnquete(w, requisicaoDeVoto(`{"optionId":invalid}`))

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response map[string]any
	err := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)
	assert.Equal(t, "payload invalido", response["message"])
}

func TestRegistrarVoto_QuandoLimiteAtingido_DeveRetornar429ComResetAt(t *testing.T) {
	api, mockService, _ := setupAPI(t)

	reinicia := time.Now().Add(10 * time.Minute).UTC().Truncate(time.Second)
	mockService.On("Votar", mock.Anything, mock.Anything).
		Return(domain.ResultadoVoto{}, &voting.ErroLimite{ReiniciaEm: reinicia})

	w := httptest.NewRecorder()
	api.handleEnquete(w, requisicaoDeVoto(`{"optionId":"`+opcaoTesteID+`"}`))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var response map[string]any
	err := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)
	assert.Equal(t, reinicia.Format(time.RFC3339), response["resetAt"])
	assert.Contains(t, response, "message")
}

func TestRegistrarVoto_QuandoEnqueteNaoEncontrada_DeveRetornar404(t *testing.T) {
	api, mockService, _ := setupAPI(t)

	mockService.On("Votar", mock.Anything, mock.Anything).
		Return(domain.ResultadoVoto{}, voting.ErrEnqueteNaoEncontrada)

	w := httptest.NewRecorder()
	api.handleEnquete(w, requisicaoDeVoto(`{"optionId":"`+opcaoTesteID+`"}`))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegistrarVoto_QuandoSemLoginEmEnqueteFechada_DeveRetornar401(t *testing.T) {
	api, mockService, _ := setupAPI(t)

	mockService.On("Votar", mock.Anything, mock.Anything).
		Return(domain.ResultadoVoto{}, domain.ErrNaoAutenticado)

	w := httptest.NewRecorder()
	api.handleEnquete(w, requisicaoDeVoto(`{"optionId":"`+opcaoTesteID+`"}`))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegistrarVoto_QuandoTokenRecusado_DeveRetornar400(t *testing.T) {
	api, mockService, _ := setupAPI(t)

	mockService.On("Votar", mock.Anything, mock.Anything).
		Return(domain.ResultadoVoto{}, token.ErrTokenExpirado)

	w := httptest.NewRecorder()
	api.handleEnquete(w, requisicaoDeVoto(`{"optionId":"`+opcaoTesteID+`"}`))

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response map[string]any
	err := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)
	assert.Contains(t, response, "message")
}

func TestRegistrarVoto_QuandoEncerrada_DeveRetornar409(t *testing.T) {
	api, mockService, _ := setupAPI(t)

	mockService.On("Votar", mock.Anything, mock.Anything).
		Return(domain.ResultadoVoto{}, voting.ErrEnqueteEncerrada)

	w := httptest.NewRecorder()
	api.handleEnquete(w, requisicaoDeVoto(`{"optionId":"`+opcaoTesteID+`"}`))

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRegistrarVoto_QuandoConflitoDeUnicidade_DeveRetornar400(t *testing.T) {
	api, mockService, _ := setupAPI(t)

	// Duplicado cru que escapar do serviço vira resposta de voto repetido
	mockService.On("Votar", mock.Anything, mock.Anything).
		Return(domain.ResultadoVoto{}, domain.ErrDuplicado)

	w := httptest.NewRecorder()
	api.handleEnquete(w, requisicaoDeVoto(`{"optionId":"`+opcaoTesteID+`"}`))

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response map[string]any
	err := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)
	assert.Equal(t, voting.ErrJaVotou.Error(), response["message"])
}

func TestRegistrarVoto_QuandoFingerprintInvalido_DeveTratarComoAusente(t *testing.T) {
	api, mockService, _ := setupAPI(t)

	mockService.On("Votar", mock.Anything, mock.MatchedBy(func(p domain.VotarParams) bool {
		return p.FingerprintHash == ""
	})).Return(domain.ResultadoVoto{Novo: true, Votos: []domain.Voto{{OpcaoID: opcaoTesteID}}}, nil)

	req := requisicaoDeVoto(`{"optionId":"` + opcaoTesteID + `"}`)
	req.Header.Set("X-Fingerprint", "NAO-E-UM-HASH")
	w := httptest.NewRecorder()

	api.handleEnquete(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRegistrarVoto_QuandoTempoNaPaginaNegativo_DeveTratarComoAusente(t *testing.T) {
	api, mockService, _ := setupAPI(t)

	mockService.On("Votar", mock.Anything, mock.MatchedBy(func(p domain.VotarParams) bool {
		return p.TempoNaPagina == nil
	})).Return(domain.ResultadoVoto{Novo: true, Votos: []domain.Voto{{OpcaoID: opcaoTesteID}}}, nil)

	w := httptest.NewRecorder()
	api.handleEnquete(w, requisicaoDeVoto(`{"optionId":"`+opcaoTesteID+`","timeOnPage":-5}`))

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRegistrarVoto_QuandoXForwardedForPresente_DeveUsarPrimeiroSalto(t *testing.T) {
	api, mockService, _ := setupAPI(t)

	mockService.On("Votar", mock.Anything, mock.MatchedBy(func(p domain.VotarParams) bool {
		return p.OrigemIP == "203.0.113.9"
	})).Return(domain.ResultadoVoto{Novo: true, Votos: []domain.Voto{{OpcaoID: opcaoTesteID}}}, nil)

	req := requisicaoDeVoto(`{"optionId":"` + opcaoTesteID + `"}`)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.2")
	w := httptest.NewRecorder()

	api.handleEnquete(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRegistrarVoto_QuandoXForwardedForAusente_DeveUsarRemoteAddr(t *testing.T) {
	api, mockService, _ := setupAPI(t)

	mockService.On("Votar", mock.Anything, mock.MatchedBy(func(p domain.VotarParams) bool {
		return p.OrigemIP == "127.0.0.1"
	})).Return(domain.ResultadoVoto{Novo: true, Votos: []domain.Voto{{OpcaoID: opcaoTesteID}}}, nil)

	req := requisicaoDeVoto(`{"optionId":"` + opcaoTesteID + `"}`)
	req.RemoteAddr = "127.0.0.1:12345"
	w := httptest.NewRecorder()

	api.handleEnquete(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRegistrarVoto_QuandoSessaoValida_DevePassarUsuario(t *testing.T) {
	api, mockService, mockSessoes := setupAPI(t)

	usuario := domain.UsuarioID("01HUSUARIOXXXXXXXXXXXXXXXX")
	mockSessoes.On("Usuario", mock.Anything, "tok-sessao").Return(usuario, nil)
	mockService.On("Votar", mock.Anything, mock.MatchedBy(func(p domain.VotarParams) bool {
		return p.UsuarioID == usuario
	})).Return(domain.ResultadoVoto{Novo: true, Votos: []domain.Voto{{OpcaoID: opcaoTesteID}}}, nil)

	req := requisicaoDeVoto(`{"optionId":"` + opcaoTesteID + `"}`)
	req.Header.Set("Authorization", "Bearer tok-sessao")
	w := httptest.NewRecorder()

	api.handleEnquete(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRegistrarVoto_QuandoSessaoDesconhecida_DeveSeguirAnonimo(t *testing.T) {
	api, mockService, mockSessoes := setupAPI(t)

	mockSessoes.On("Usuario", mock.Anything, "tok-vencido").
		Return(domain.UsuarioID(""), domain.ErrNaoEncontrado)
	mockService.On("Votar", mock.Anything, mock.MatchedBy(func(p domain.VotarParams) bool {
		return p.UsuarioID == ""
	})).Return(domain.ResultadoVoto{Novo: true, Votos: []domain.Voto{{OpcaoID: opcaoTesteID}}}, nil)

	req := requisicaoDeVoto(`{"optionId":"` + opcaoTesteID + `"}`)
	req.Header.Set("Authorization", "Bearer tok-vencido")
	w := httptest.NewRecorder()

	api.handleEnquete(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
}

// === TESTES GET /api/polls/{id}/has-voted ===

func TestConsultarVoto_QuandoJaVotou_DeveRetornarOpcoes(t *testing.T) {
	api, mockService, _ := setupAPI(t)

	mockService.On("JaVotou", mock.Anything, domain.EnqueteID(enqueteTesteID), domain.UsuarioID(""), "192.0.2.1", hashTeste).
		Return(domain.StatusVoto{JaVotou: true, Opcoes: []domain.OpcaoID{opcaoTesteID}}, nil)

	req := httptest.NewRequest("GET", "/api/polls/"+enqueteTesteID+"/has-voted", nil)
	req.Header.Set("X-Fingerprint", hashTeste)
	req.RemoteAddr = "192.0.2.1:40000"
	w := httptest.NewRecorder()

	api.handleEnquete(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response jaVotouResponse
	err := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)
	assert.True(t, response.HasVoted)
	require.Len(t, response.OptionIDs, 1)
	assert.Equal(t, domain.OpcaoID(opcaoTesteID), response.OptionIDs[0])
}

func TestConsultarVoto_QuandoNaoVotou_DeveOmitirOpcoes(t *testing.T) {
	api, mockService, _ := setupAPI(t)

	mockService.On("JaVotou", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(domain.StatusVoto{}, nil)

	req := httptest.NewRequest("GET", "/api/polls/"+enqueteTesteID+"/has-voted", nil)
	w := httptest.NewRecorder()

	api.handleEnquete(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]any
	err := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)
	assert.Equal(t, false, response["hasVoted"])
	assert.NotContains(t, response, "optionIds")
}

// === TESTES POST /api/polls/{id}/token ===

func TestEmitirToken_QuandoEnqueteAberta_DeveRetornarToken(t *testing.T) {
	api, mockService, _ := setupAPI(t)

	mockService.On("EmitirToken", mock.Anything, domain.EnqueteID(enqueteTesteID), hashTeste).
		Return("tok-serializado", nil)

	payload := `{"fingerprint":"` + hashTeste + `"}`
	req := httptest.NewRequest("POST", "/api/polls/"+enqueteTesteID+"/token", bytes.NewReader([]byte(payload)))
	w := httptest.NewRecorder()

	api.handleEnquete(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response tokenResponse
	err := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)
	assert.Equal(t, "tok-serializado", response.VoteToken)
}

func TestEmitirToken_QuandoEncerrada_DeveRetornar409(t *testing.T) {
	api, mockService, _ := setupAPI(t)

	mockService.On("EmitirToken", mock.Anything, domain.EnqueteID(enqueteTesteID), mock.Anything).
		Return("", voting.ErrEnqueteEncerrada)

	payload := `{"fingerprint":"` + hashTeste + `"}`
	req := httptest.NewRequest("POST", "/api/polls/"+enqueteTesteID+"/token", bytes.NewReader([]byte(payload)))
	w := httptest.NewRecorder()

	api.handleEnquete(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

// === TESTES GET /api/polls/{id}/results ===

func TestObterResultados_QuandoExiste_DeveRetornarParciais(t *testing.T) {
	api, mockService, _ := setupAPI(t)

	parciais := []domain.Parcial{
		{EnqueteID: enqueteTesteID, OpcaoID: "op-a", Total: 100, Percentual: 66.7},
		{EnqueteID: enqueteTesteID, OpcaoID: "op-b", Total: 50, Percentual: 33.3},
	}
	mockService.On("Parciais", mock.Anything, domain.EnqueteID(enqueteTesteID)).Return(parciais, nil)

	req := httptest.NewRequest("GET", "/api/polls/"+enqueteTesteID+"/results", nil)
	w := httptest.NewRecorder()

	api.handleEnquete(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response []domain.Parcial
	err := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)
	assert.Len(t, response, 2)
	assert.Equal(t, int64(100), response[0].Total)
	assert.Equal(t, 66.7, response[0].Percentual)
}

func TestObterResultados_QuandoNaoEncontrada_DeveRetornar404(t *testing.T) {
	api, mockService, _ := setupAPI(t)

	mockService.On("Parciais", mock.Anything, domain.EnqueteID(enqueteTesteID)).
		Return([]domain.Parcial(nil), voting.ErrEnqueteNaoEncontrada)

	req := httptest.NewRequest("GET", "/api/polls/"+enqueteTesteID+"/results", nil)
	w := httptest.NewRecorder()

	api.handleEnquete(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// === TESTES ROTAS NÃO ENCONTRADAS ===

func TestHandleEnquete_QuandoRotaInvalida_DeveRetornar404(t *testing.T) {
	api, _, _ := setupAPI(t)

	casos := []struct {
		metodo string
		rota   string
	}{
		{"GET", "/api/polls/" + enqueteTesteID + "/invalida"},
		{"GET", "/api/polls/"},
		{"POST", "/api/polls/" + enqueteTesteID + "/has-voted"},
		{"GET", "/api/polls/" + enqueteTesteID + "/vote"},
	}

	for _, caso := range casos {
		req := httptest.NewRequest(caso.metodo, caso.rota, nil)
		w := httptest.NewRecorder()

		api.handleEnquete(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code, "%s %s", caso.metodo, caso.rota)
	}
}
