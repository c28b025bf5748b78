// Pacote voting implementa as regras de negócio da votação: criação de
// enquetes, o funil de admissão de votos e a leitura de parciais.
package voting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marcelojr/urna-aberta/internal/app/token"
	"github.com/marcelojr/urna-aberta/internal/domain"
	"github.com/marcelojr/urna-aberta/internal/platform/antifraude"
	"github.com/marcelojr/urna-aberta/internal/platform/ids"
	"github.com/marcelojr/urna-aberta/internal/platform/logger"
	"github.com/marcelojr/urna-aberta/internal/platform/metrics"
)

var (
	ErrEnqueteInvalida      = errors.New("enquete invalida")
	ErrEnqueteEncerrada     = errors.New("enquete encerrada")
	ErrEnqueteNaoEncontrada = errors.New("enquete nao encontrada")
	ErrSelecaoInvalida      = errors.New("selecao de opcoes invalida")
	ErrJaVotou              = errors.New("identidade ja votou nesta enquete")
	ErrTokenObrigatorio     = errors.New("token de voto obrigatorio")
	ErrLimiteTentativas     = errors.New("limite de tentativas atingido")
)

// ErroLimite carrega o instante em que a janela de tentativas reabre, para a
// resposta 429 informar resetAt ao cliente.
type ErroLimite struct {
	ReiniciaEm time.Time
}

func (e *ErroLimite) Error() string { return ErrLimiteTentativas.Error() }

func (e *ErroLimite) Unwrap() error { return ErrLimiteTentativas }

// Config agrupa os parâmetros dos portões de admissão.
type Config struct {
	Tentativas  antifraude.ConfigTentativas
	Ritmo       antifraude.ConfigRitmo
	ExigirToken bool
}

func ConfigPadrao() Config {
	return Config{
		Tentativas:  antifraude.ConfigTentativasPadrao(),
		Ritmo:       antifraude.ConfigRitmoPadrao(),
		ExigirToken: true,
	}
}

// Service concentra as regras de votação e delega acesso a repositórios,
// contadores e barreiras antifraude.
type Service struct {
	enquetes   domain.EnqueteRepository
	opcoes     domain.OpcaoRepository
	votos      domain.VotoRepository
	tentativas domain.TentativaRepository
	contador   domain.Contador
	nonces     domain.Nonces
	antifraude domain.Antifraude
	emissor    *token.Emissor
	clock      domain.Clock
	ids        *ids.Generator
	cfg        Config
}

func NewService(
	enquetes domain.EnqueteRepository,
	opcoes domain.OpcaoRepository,
	votos domain.VotoRepository,
	tentativas domain.TentativaRepository,
	contador domain.Contador,
	nonces domain.Nonces,
	antifraudeGate domain.Antifraude,
	emissor *token.Emissor,
	clock domain.Clock,
	idsGen *ids.Generator,
	cfg Config,
) *Service {
	if idsGen == nil {
		idsGen = ids.DefaultGenerator()
	}
	return &Service{
		enquetes:   enquetes,
		opcoes:     opcoes,
		votos:      votos,
		tentativas: tentativas,
		contador:   contador,
		nonces:     nonces,
		antifraude: antifraudeGate,
		emissor:    emissor,
		clock:      clock,
		ids:        idsGen,
		cfg:        cfg,
	}
}

// CriarEnquete centraliza a validação e a criação das entidades principais.
func (s *Service) CriarEnquete(ctx context.Context, e domain.Enquete, opcoes []domain.Opcao) (domain.Enquete, error) {
	if err := validarEnquete(e, opcoes); err != nil {
		return domain.Enquete{}, err
	}
	agora := s.clock.Agora()

	e.ID = domain.EnqueteID(s.ids.New())
	if e.Inicio.IsZero() {
		e.Inicio = agora
	}
	if e.Fim.IsZero() || e.Fim.Before(e.Inicio) {
		return domain.Enquete{}, fmt.Errorf("%w: intervalo invalido", ErrEnqueteInvalida)
	}
	e.Ativa = true
	e.CriadoEm = agora
	e.AtualizadoEm = agora

	opcoesCriadas := make([]domain.Opcao, len(opcoes))
	for i, op := range opcoes {
		op.ID = domain.OpcaoID(s.ids.New())
		op.EnqueteID = e.ID
		if op.Ordem == 0 {
			op.Ordem = i + 1
		}
		op.CriadoEm = agora
		op.AtualizadoEm = agora
		opcoesCriadas[i] = op
	}

	if err := s.enquetes.Create(ctx, e); err != nil {
		return domain.Enquete{}, err
	}

	if err := s.opcoes.BulkCreate(ctx, e.ID, opcoesCriadas); err != nil {
		return domain.Enquete{}, err
	}

	e.Opcoes = opcoesCriadas
	return e, nil
}

func (s *Service) ListarAtivas(ctx context.Context) ([]domain.Enquete, error) {
	return s.enquetes.ListAtivas(ctx, s.clock.Agora())
}

// Votar percorre os portões de admissão na ordem fixa: estrutura, identidade,
// barreira grossa, janela de tentativas, token, comportamento e ritmo, e por
// fim o resolvedor de voto repetido. O primeiro portão que recusa encerra a
// submissão.
func (s *Service) Votar(ctx context.Context, p domain.VotarParams) (domain.ResultadoVoto, error) {
	inicio := time.Now()
	defer func() {
		metrics.ObserveProcessingDuration(time.Since(inicio).Seconds())
	}()

	enquete, err := s.enquetes.FindByID(ctx, p.EnqueteID)
	if err != nil {
		if errors.Is(err, domain.ErrNaoEncontrado) {
			return domain.ResultadoVoto{}, ErrEnqueteNaoEncontrada
		}
		return domain.ResultadoVoto{}, err
	}

	agora := s.clock.Agora()
	if !enquete.Ativa || agora.Before(enquete.Inicio) || agora.After(enquete.Fim) {
		metrics.IncVoteDecision("encerrada")
		return domain.ResultadoVoto{}, ErrEnqueteEncerrada
	}

	selecao, err := normalizarSelecao(enquete, p.Opcoes)
	if err != nil {
		metrics.IncVoteDecision("selecao_invalida")
		return domain.ResultadoVoto{}, err
	}

	identidade, err := domain.ResolverIdentidade(enquete, p.UsuarioID, p.OrigemIP, p.FingerprintHash)
	if err != nil {
		metrics.IncVoteDecision("nao_autenticado")
		return domain.ResultadoVoto{}, err
	}

	if s.antifraude != nil {
		if err := s.antifraude.Validar(ctx, p.EnqueteID, p.OrigemIP); err != nil {
			if errors.Is(err, antifraude.ErrRateLimitExceeded) {
				metrics.IncVoteDecision("rajada")
				return domain.ResultadoVoto{}, fmt.Errorf("%w: rajada por origem", ErrLimiteTentativas)
			}
			return domain.ResultadoVoto{}, err
		}
	}

	registro, err := s.registroDeTentativas(ctx, p)
	if err != nil {
		return domain.ResultadoVoto{}, err
	}

	veredito := antifraude.AvaliarTentativas(registro, agora, s.cfg.Tentativas)
	if !veredito.Permitido {
		metrics.IncVoteDecision("limite_tentativas")
		return domain.ResultadoVoto{}, &ErroLimite{ReiniciaEm: veredito.ReiniciaEm}
	}
	if veredito.Suspeito {
		metrics.IncSuspiciousAttempt()
		logger.Warn("tentativas proximas do limite",
			"enquete", p.EnqueteID, "restantes", veredito.TentativasRestantes)
	}

	// Instante da tentativa anterior, congelado antes do incremento; o portão
	// de ritmo compara contra ele.
	var ultimaTentativa *time.Time
	if registro != nil && !veredito.JanelaNova {
		anterior := registro.UltimaEm
		ultimaTentativa = &anterior
	}

	// Tentativa admitida conta mesmo que um portão adiante recuse; rajada de
	// submissões ruins consome o próprio orçamento.
	if _, err := s.tentativas.Incrementar(ctx, p.EnqueteID, p.OrigemIP, p.FingerprintHash, agora, veredito.JanelaNova); err != nil {
		return domain.ResultadoVoto{}, err
	}

	if err := s.validarToken(ctx, identidade, p); err != nil {
		metrics.IncVoteDecision("token_recusado")
		return domain.ResultadoVoto{}, err
	}

	comportamento := antifraude.AvaliarComportamento(p.TempoNaPagina)
	if !comportamento.Valido {
		metrics.IncVoteDecision("comportamento")
		return domain.ResultadoVoto{}, fmt.Errorf("%w: %s", antifraude.ErrComportamentoSuspeito, comportamento.Motivo)
	}
	if comportamento.Pontuacao > 0 && comportamento.Motivo != "" {
		// Pontuação abaixo do limiar é sinal observável, nunca bloqueio.
		logger.Info("comportamento pontuado",
			"enquete", p.EnqueteID, "pontuacao", comportamento.Pontuacao, "motivo", comportamento.Motivo)
	}

	if err := antifraude.ValidarRitmo(p.TempoNaPagina, ultimaTentativa, agora, s.cfg.Ritmo); err != nil {
		metrics.IncVoteDecision("ritmo")
		return domain.ResultadoVoto{}, err
	}

	resultado, err := s.resolverVoto(ctx, enquete, identidade, selecao, p, agora)
	if err != nil {
		// Conflito de unicidade que sobrou do resolver é a mesma identidade
		// gravando em paralelo; para o cliente isso é voto repetido, nunca
		// erro de storage.
		if errors.Is(err, domain.ErrDuplicado) {
			err = fmt.Errorf("%w: submissao concorrente da mesma identidade", ErrJaVotou)
		}
		if errors.Is(err, ErrJaVotou) {
			metrics.IncVoteDecision("ja_votou")
		}
		return domain.ResultadoVoto{}, err
	}

	// Voto aceito devolve o orçamento de tentativas da tupla.
	if err := s.tentativas.Reiniciar(ctx, p.EnqueteID, p.OrigemIP, p.FingerprintHash); err != nil {
		logger.Error("falha ao reiniciar tentativas", "enquete", p.EnqueteID, "err", err)
	}

	if resultado.Novo {
		metrics.IncVoteDecision("novo")
	} else {
		metrics.IncVoteDecision("alterado")
	}
	return resultado, nil
}

// JaVotou resolve a identidade do jeito da submissão e informa o que ela já
// marcou, sem tocar em nada.
func (s *Service) JaVotou(ctx context.Context, id domain.EnqueteID, usuarioID domain.UsuarioID, origemIP, fingerprintHash string) (domain.StatusVoto, error) {
	enquete, err := s.enquetes.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNaoEncontrado) {
			return domain.StatusVoto{}, ErrEnqueteNaoEncontrada
		}
		return domain.StatusVoto{}, err
	}

	identidade, err := domain.ResolverIdentidade(enquete, usuarioID, origemIP, fingerprintHash)
	if err != nil {
		// Visitante sem login em enquete que exige login não tem voto.
		if errors.Is(err, domain.ErrNaoAutenticado) {
			return domain.StatusVoto{}, nil
		}
		return domain.StatusVoto{}, err
	}

	votos, err := s.votos.BuscarPorIdentidade(ctx, id, identidade)
	if err != nil {
		return domain.StatusVoto{}, err
	}
	if len(votos) == 0 {
		return domain.StatusVoto{}, nil
	}

	opcoes := make([]domain.OpcaoID, len(votos))
	for i, v := range votos {
		opcoes[i] = v.OpcaoID
	}
	return domain.StatusVoto{JaVotou: true, Opcoes: opcoes}, nil
}

// EmitirToken assina um token de voto para a enquete e o fingerprint dados.
func (s *Service) EmitirToken(ctx context.Context, id domain.EnqueteID, fingerprintHash string) (string, error) {
	enquete, err := s.enquetes.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNaoEncontrado) {
			return "", ErrEnqueteNaoEncontrada
		}
		return "", err
	}

	agora := s.clock.Agora()
	if !enquete.Ativa || agora.Before(enquete.Inicio) || agora.After(enquete.Fim) {
		return "", ErrEnqueteEncerrada
	}

	t, err := s.emissor.Emitir(id, fingerprintHash)
	if err != nil {
		return "", err
	}
	metrics.IncToken("emitido")
	return token.Serializar(t), nil
}

// Parciais serve os totais a partir dos contadores Redis mantidos a cada voto
// e recai no Postgres, a fonte de verdade, quando o cache está frio ou
// incoerente.
func (s *Service) Parciais(ctx context.Context, enqueteID domain.EnqueteID) ([]domain.Parcial, error) {
	enquete, err := s.enquetes.FindByID(ctx, enqueteID)
	if err != nil {
		if errors.Is(err, domain.ErrNaoEncontrado) {
			return nil, ErrEnqueteNaoEncontrada
		}
		return nil, err
	}

	totais, ok := s.totaisDoCache(ctx, enquete)
	if !ok {
		totais, err = s.votos.TotalPorOpcao(ctx, enqueteID)
		if err != nil {
			return nil, err
		}
	}

	var totalGeral int64
	for _, total := range totais {
		totalGeral += total
	}

	resultado := make([]domain.Parcial, len(enquete.Opcoes))
	for i, op := range enquete.Opcoes {
		total := totais[op.ID]
		percentual := 0.0
		if totalGeral > 0 {
			percentual = (float64(total) / float64(totalGeral)) * 100
		}
		resultado[i] = domain.Parcial{
			EnqueteID:  enqueteID,
			OpcaoID:    op.ID,
			Total:      total,
			Percentual: percentual,
		}
	}
	return resultado, nil
}

// totaisDoCache monta as parciais pelos contadores Redis. O total da enquete é
// gravado junto com os totais por opção; quando a soma diverge dele o cache
// perdeu escrita (flush, expiração) e a leitura volta para o Postgres.
func (s *Service) totaisDoCache(ctx context.Context, enquete domain.Enquete) (map[domain.OpcaoID]int64, bool) {
	if s.contador == nil || len(enquete.Opcoes) == 0 {
		return nil, false
	}

	chaves := make([]string, 0, len(enquete.Opcoes)+1)
	chaves = append(chaves, CounterKeyTotalEnquete(enquete.ID))
	for _, op := range enquete.Opcoes {
		chaves = append(chaves, CounterKeyOpcao(enquete.ID, op.ID))
	}

	valores, err := s.contador.ObterTodos(ctx, chaves)
	if err != nil {
		logger.Error("falha ao ler contadores de parciais", "enquete", enquete.ID, "err", err)
		return nil, false
	}

	total := valores[chaves[0]]
	var soma int64
	totais := make(map[domain.OpcaoID]int64, len(enquete.Opcoes))
	for i, op := range enquete.Opcoes {
		valor := valores[chaves[i+1]]
		soma += valor
		totais[op.ID] = valor
	}

	// Cache frio é indistinguível de enquete sem votos; o Postgres desempata.
	if total == 0 && soma == 0 {
		return nil, false
	}
	if soma != total {
		logger.Warn("contadores de parciais incoerentes", "enquete", enquete.ID, "soma", soma, "total", total)
		return nil, false
	}
	return totais, true
}

// registroDeTentativas busca a tupla atual; ausência vira nil para o avaliador.
func (s *Service) registroDeTentativas(ctx context.Context, p domain.VotarParams) (*domain.TentativaVoto, error) {
	reg, err := s.tentativas.Obter(ctx, p.EnqueteID, p.OrigemIP, p.FingerprintHash)
	if err != nil {
		if errors.Is(err, domain.ErrNaoEncontrado) {
			return nil, nil
		}
		return nil, err
	}
	return &reg, nil
}

// validarToken aplica o portão de token: obrigatório para voto anônimo quando
// configurado, amarrado à enquete e ao fingerprint, e de nonce único.
func (s *Service) validarToken(ctx context.Context, identidade domain.Identidade, p domain.VotarParams) error {
	if p.Token == "" {
		if s.cfg.ExigirToken && !identidade.Autenticada() {
			metrics.IncToken("ausente")
			return ErrTokenObrigatorio
		}
		return nil
	}

	t, err := token.Deserializar(p.Token)
	if err != nil {
		metrics.IncToken("malformado")
		return err
	}
	if err := s.emissor.Validar(t); err != nil {
		metrics.IncToken("invalido")
		return err
	}
	if t.EnqueteID != p.EnqueteID {
		metrics.IncToken("invalido")
		return fmt.Errorf("%w: enquete divergente", token.ErrTokenMalformado)
	}
	if p.FingerprintHash != "" && t.Fingerprint != p.FingerprintHash {
		metrics.IncToken("invalido")
		return fmt.Errorf("%w: fingerprint divergente", token.ErrTokenMalformado)
	}

	if s.nonces != nil {
		primeiro, err := s.nonces.Consumir(ctx, t.Nonce, s.emissor.Validade())
		if err != nil {
			return err
		}
		if !primeiro {
			metrics.IncToken("reutilizado")
			return token.ErrTokenReutilizado
		}
	}

	metrics.IncToken("aceito")
	return nil
}

// resolverVoto decide entre inserir, recusar ou trocar o voto da identidade.
// Violação de unicidade marca corrida com outra submissão da mesma identidade
// e reentra uma vez no ramo de voto existente.
func (s *Service) resolverVoto(ctx context.Context, enquete domain.Enquete, identidade domain.Identidade, selecao []domain.OpcaoID, p domain.VotarParams, agora time.Time) (domain.ResultadoVoto, error) {
	for rodada := 0; ; rodada++ {
		existentes, err := s.votos.BuscarPorIdentidade(ctx, enquete.ID, identidade)
		if err != nil {
			return domain.ResultadoVoto{}, err
		}

		if len(existentes) == 0 {
			novos := s.montarVotos(enquete, identidade, selecao, p, agora)
			err := s.votos.Registrar(ctx, novos)
			if errors.Is(err, domain.ErrDuplicado) && rodada == 0 {
				continue
			}
			if err != nil {
				return domain.ResultadoVoto{}, err
			}
			s.ajustarContadores(ctx, enquete.ID, nil, novos)
			return domain.ResultadoVoto{Novo: true, Votos: novos}, nil
		}

		if !enquete.PermitirAlteracao {
			return domain.ResultadoVoto{}, ErrJaVotou
		}

		if enquete.MultiplaEscolha {
			novos := s.montarVotos(enquete, identidade, selecao, p, agora)
			err := s.votos.Substituir(ctx, enquete.ID, identidade, novos)
			if errors.Is(err, domain.ErrDuplicado) && rodada == 0 {
				continue
			}
			if err != nil {
				return domain.ResultadoVoto{}, err
			}
			s.ajustarContadores(ctx, enquete.ID, existentes, novos)
			return domain.ResultadoVoto{Novo: false, Votos: novos}, nil
		}

		atual := existentes[0]
		if atual.OpcaoID == selecao[0] {
			// Mesma opção de novo não muda nada; responde como alteração.
			return domain.ResultadoVoto{Novo: false, Votos: existentes}, nil
		}
		if err := s.votos.AtualizarOpcao(ctx, atual.ID, selecao[0]); err != nil {
			return domain.ResultadoVoto{}, err
		}
		anterior := atual
		atual.OpcaoID = selecao[0]
		atual.AtualizadoEm = agora
		s.ajustarContadores(ctx, enquete.ID, []domain.Voto{anterior}, []domain.Voto{atual})
		return domain.ResultadoVoto{Novo: false, Votos: []domain.Voto{atual}}, nil
	}
}

func (s *Service) montarVotos(enquete domain.Enquete, identidade domain.Identidade, selecao []domain.OpcaoID, p domain.VotarParams, agora time.Time) []domain.Voto {
	votos := make([]domain.Voto, len(selecao))
	for i, opcaoID := range selecao {
		votos[i] = domain.Voto{
			ID:              domain.VotoID(s.ids.New()),
			EnqueteID:       enquete.ID,
			OpcaoID:         opcaoID,
			MultiplaEscolha: enquete.MultiplaEscolha,
			UsuarioID:       identidade.UsuarioID,
			OrigemIP:        p.OrigemIP,
			UserAgent:       p.UserAgent,
			FingerprintHash: p.FingerprintHash,
			Token:           p.Token,
			TempoNaPagina:   p.TempoNaPagina,
			CriadoEm:        agora,
			AtualizadoEm:    agora,
		}
	}
	return votos
}

// ajustarContadores aplica no Redis o delta entre o conjunto anterior e o
// novo. Falha aqui não derruba o voto; o Postgres segue sendo a verdade.
func (s *Service) ajustarContadores(ctx context.Context, enqueteID domain.EnqueteID, anteriores, novos []domain.Voto) {
	if s.contador == nil {
		return
	}

	deltas := make(map[domain.OpcaoID]int64)
	for _, v := range anteriores {
		deltas[v.OpcaoID]--
	}
	for _, v := range novos {
		deltas[v.OpcaoID]++
	}

	for opcaoID, delta := range deltas {
		if delta == 0 {
			continue
		}
		if _, err := s.contador.Incrementar(ctx, CounterKeyOpcao(enqueteID, opcaoID), delta); err != nil {
			logger.Error("falha ao ajustar contador de opcao", "enquete", enqueteID, "opcao", opcaoID, "err", err)
		}
	}

	totalDelta := int64(len(novos) - len(anteriores))
	if totalDelta != 0 {
		if _, err := s.contador.Incrementar(ctx, CounterKeyTotalEnquete(enqueteID), totalDelta); err != nil {
			logger.Error("falha ao ajustar contador total", "enquete", enqueteID, "err", err)
		}
	}
}

func normalizarSelecao(enquete domain.Enquete, selecao []domain.OpcaoID) ([]domain.OpcaoID, error) {
	if len(selecao) == 0 {
		return nil, fmt.Errorf("%w: nenhuma opcao marcada", ErrSelecaoInvalida)
	}

	// Repetição na mesma submissão não é fraude, só ruído de cliente.
	vistas := make(map[domain.OpcaoID]struct{}, len(selecao))
	unicas := make([]domain.OpcaoID, 0, len(selecao))
	for _, id := range selecao {
		if _, ok := vistas[id]; ok {
			continue
		}
		vistas[id] = struct{}{}
		unicas = append(unicas, id)
	}

	if !enquete.MultiplaEscolha && len(unicas) > 1 {
		return nil, fmt.Errorf("%w: enquete aceita uma opcao", ErrSelecaoInvalida)
	}

	validas := make(map[domain.OpcaoID]struct{}, len(enquete.Opcoes))
	for _, op := range enquete.Opcoes {
		validas[op.ID] = struct{}{}
	}
	for _, id := range unicas {
		if _, ok := validas[id]; !ok {
			return nil, fmt.Errorf("%w: opcao %s nao pertence a enquete", ErrSelecaoInvalida, id)
		}
	}

	return unicas, nil
}

func validarEnquete(e domain.Enquete, opcoes []domain.Opcao) error {
	if e.Pergunta == "" {
		return fmt.Errorf("%w: pergunta obrigatoria", ErrEnqueteInvalida)
	}
	if len(opcoes) < 2 {
		return fmt.Errorf("%w: minimo de duas opcoes", ErrEnqueteInvalida)
	}
	return nil
}

var _ domain.VotingService = (*Service)(nil)
