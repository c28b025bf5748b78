package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/marcelojr/urna-aberta/internal/domain"
)

// EnqueteRepository mapeia o agregado de enquete para tabelas GORM.
type EnqueteRepository struct {
	db *gorm.DB
}

func NewEnqueteRepository(db *gorm.DB) *EnqueteRepository {
	return &EnqueteRepository{db: db}
}

type enqueteModel struct {
	ID                string       `gorm:"column:id;primaryKey"`
	Pergunta          string       `gorm:"column:pergunta"`
	Descricao         string       `gorm:"column:descricao"`
	Tipo              string       `gorm:"column:tipo"`
	Anonima           bool         `gorm:"column:anonima"`
	MultiplaEscolha   bool         `gorm:"column:multipla_escolha"`
	PermitirAlteracao bool         `gorm:"column:permitir_alteracao"`
	Inicio            time.Time    `gorm:"column:inicio"`
	Fim               time.Time    `gorm:"column:fim"`
	Ativa             bool         `gorm:"column:ativa"`
	CriadoEm          time.Time    `gorm:"column:criado_em"`
	AtualizadoEm      time.Time    `gorm:"column:atualizado_em"`
	Opcoes            []opcaoModel `gorm:"foreignKey:EnqueteID;references:ID"`
}

func (enqueteModel) TableName() string {
	return "enquetes"
}

func (m enqueteModel) toDomain() domain.Enquete {
	e := domain.Enquete{
		ID:                domain.EnqueteID(m.ID),
		Pergunta:          m.Pergunta,
		Descricao:         m.Descricao,
		Tipo:              m.Tipo,
		Anonima:           m.Anonima,
		MultiplaEscolha:   m.MultiplaEscolha,
		PermitirAlteracao: m.PermitirAlteracao,
		Inicio:            m.Inicio,
		Fim:               m.Fim,
		Ativa:             m.Ativa,
		CriadoEm:          m.CriadoEm,
		AtualizadoEm:      m.AtualizadoEm,
	}

	opcoes := make([]domain.Opcao, len(m.Opcoes))
	for i, op := range m.Opcoes {
		opcoes[i] = op.toDomain()
	}
	e.Opcoes = opcoes

	return e
}

func fromDomainEnquete(e domain.Enquete) enqueteModel {
	model := enqueteModel{
		ID:                string(e.ID),
		Pergunta:          e.Pergunta,
		Descricao:         e.Descricao,
		Tipo:              e.Tipo,
		Anonima:           e.Anonima,
		MultiplaEscolha:   e.MultiplaEscolha,
		PermitirAlteracao: e.PermitirAlteracao,
		Inicio:            e.Inicio,
		Fim:               e.Fim,
		Ativa:             e.Ativa,
		CriadoEm:          e.CriadoEm,
		AtualizadoEm:      e.AtualizadoEm,
	}

	if len(e.Opcoes) > 0 {
		model.Opcoes = make([]opcaoModel, len(e.Opcoes))
		for i, op := range e.Opcoes {
			model.Opcoes[i] = fromDomainOpcao(op)
		}
	}

	return model
}

func (r *EnqueteRepository) Create(ctx context.Context, e domain.Enquete) error {
	model := fromDomainEnquete(e)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("gorm enquete: inserir: %w", err)
	}
	return nil
}

func (r *EnqueteRepository) Update(ctx context.Context, e domain.Enquete) error {
	model := fromDomainEnquete(e)
	if err := r.db.WithContext(ctx).Model(&enqueteModel{}).
		Where("id = ?", model.ID).
		Updates(map[string]any{
			"pergunta":           model.Pergunta,
			"descricao":          model.Descricao,
			"tipo":               model.Tipo,
			"anonima":            model.Anonima,
			"multipla_escolha":   model.MultiplaEscolha,
			"permitir_alteracao": model.PermitirAlteracao,
			"inicio":             model.Inicio,
			"fim":                model.Fim,
			"ativa":              model.Ativa,
			"atualizado_em":      model.AtualizadoEm,
		}).Error; err != nil {
		return fmt.Errorf("gorm enquete: atualizar: %w", err)
	}
	return nil
}

func (r *EnqueteRepository) FindByID(ctx context.Context, id domain.EnqueteID) (domain.Enquete, error) {
	var model enqueteModel
	if err := r.db.WithContext(ctx).
		// Preload ordenado deixa as opções prontas na ordem de exibição.
		Preload("Opcoes", func(db *gorm.DB) *gorm.DB {
			return db.Order("ordem ASC, texto ASC")
		}).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Enquete{}, domain.ErrNaoEncontrado
		}
		return domain.Enquete{}, fmt.Errorf("gorm enquete: buscar id: %w", err)
	}
	return model.toDomain(), nil
}

// ListAtivas recebe o instante de corte em vez de usar NOW(): o relógio fica
// no chamador e a mesma consulta roda em Postgres e no SQLite dos testes.
func (r *EnqueteRepository) ListAtivas(ctx context.Context, agora time.Time) ([]domain.Enquete, error) {
	var models []enqueteModel
	if err := r.db.WithContext(ctx).
		Where("ativa = ? AND inicio <= ? AND fim >= ?", true, agora, agora).
		Order("inicio ASC").
		Preload("Opcoes", func(db *gorm.DB) *gorm.DB {
			return db.Order("ordem ASC, texto ASC")
		}).
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("gorm enquete: listar ativas: %w", err)
	}

	result := make([]domain.Enquete, len(models))
	for i, model := range models {
		result[i] = model.toDomain()
	}
	return result, nil
}

var _ domain.EnqueteRepository = (*EnqueteRepository)(nil)
