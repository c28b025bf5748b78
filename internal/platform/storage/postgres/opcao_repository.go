package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/marcelojr/urna-aberta/internal/domain"
)

// OpcaoRepository persiste opções associadas a uma enquete usando GORM.
type OpcaoRepository struct {
	db *gorm.DB
}

func NewOpcaoRepository(db *gorm.DB) *OpcaoRepository {
	return &OpcaoRepository{db: db}
}

type opcaoModel struct {
	ID           string    `gorm:"column:id;primaryKey"`
	EnqueteID    string    `gorm:"column:enquete_id;index"`
	Texto        string    `gorm:"column:texto"`
	Ordem        int       `gorm:"column:ordem"`
	CriadoEm     time.Time `gorm:"column:criado_em"`
	AtualizadoEm time.Time `gorm:"column:atualizado_em"`
}

func (opcaoModel) TableName() string {
	return "opcoes"
}

func (m opcaoModel) toDomain() domain.Opcao {
	return domain.Opcao{
		ID:           domain.OpcaoID(m.ID),
		EnqueteID:    domain.EnqueteID(m.EnqueteID),
		Texto:        m.Texto,
		Ordem:        m.Ordem,
		CriadoEm:     m.CriadoEm,
		AtualizadoEm: m.AtualizadoEm,
	}
}

func fromDomainOpcao(o domain.Opcao) opcaoModel {
	return opcaoModel{
		ID:           string(o.ID),
		EnqueteID:    string(o.EnqueteID),
		Texto:        o.Texto,
		Ordem:        o.Ordem,
		CriadoEm:     o.CriadoEm,
		AtualizadoEm: o.AtualizadoEm,
	}
}

func (r *OpcaoRepository) BulkCreate(ctx context.Context, enqueteID domain.EnqueteID, opcoes []domain.Opcao) error {
	if len(opcoes) == 0 {
		return nil
	}

	// Inserção em lote evita múltiplos round-trips para enquetes grandes.
	models := make([]opcaoModel, len(opcoes))
	for i, op := range opcoes {
		if op.EnqueteID == "" {
			op.EnqueteID = enqueteID
		}
		models[i] = fromDomainOpcao(op)
	}

	if err := r.db.WithContext(ctx).Create(&models).Error; err != nil {
		return fmt.Errorf("gorm opcao: bulk create: %w", err)
	}
	return nil
}

func (r *OpcaoRepository) ListByEnquete(ctx context.Context, enqueteID domain.EnqueteID) ([]domain.Opcao, error) {
	var models []opcaoModel
	if err := r.db.WithContext(ctx).
		// Ordem de exibição primeiro; texto desempata para manter previsibilidade.
		Where("enquete_id = ?", enqueteID).
		Order("ordem ASC, texto ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("gorm opcao: listar: %w", err)
	}

	result := make([]domain.Opcao, len(models))
	for i, model := range models {
		result[i] = model.toDomain()
	}
	return result, nil
}

var _ domain.OpcaoRepository = (*OpcaoRepository)(nil)
