package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/marcelojr/urna-aberta/internal/domain"
)

// VotoRepository guarda votos e resolve a identidade nas consultas. Os
// índices parciais de unicidade (migração 202506010003) são a trava real de
// concorrência; aqui só traduzimos a violação para domain.ErrDuplicado.
type VotoRepository struct {
	db *gorm.DB
}

func NewVotoRepository(db *gorm.DB) *VotoRepository {
	return &VotoRepository{db: db}
}

type votoModel struct {
	ID              string    `gorm:"column:id;primaryKey"`
	EnqueteID       string    `gorm:"column:enquete_id;index"`
	OpcaoID         string    `gorm:"column:opcao_id;index"`
	MultiplaEscolha bool      `gorm:"column:multipla_escolha"`
	UsuarioID       string    `gorm:"column:usuario_id"`
	OrigemIP        string    `gorm:"column:origem_ip"`
	UserAgent       string    `gorm:"column:user_agent"`
	FingerprintHash string    `gorm:"column:fingerprint_hash"`
	Token           string    `gorm:"column:token"`
	TempoNaPagina   *float64  `gorm:"column:tempo_na_pagina"`
	CriadoEm        time.Time `gorm:"column:criado_em"`
	AtualizadoEm    time.Time `gorm:"column:atualizado_em"`
}

func (votoModel) TableName() string {
	return "votos"
}

func (m votoModel) toDomain() domain.Voto {
	return domain.Voto{
		ID:              domain.VotoID(m.ID),
		EnqueteID:       domain.EnqueteID(m.EnqueteID),
		OpcaoID:         domain.OpcaoID(m.OpcaoID),
		MultiplaEscolha: m.MultiplaEscolha,
		UsuarioID:       domain.UsuarioID(m.UsuarioID),
		OrigemIP:        m.OrigemIP,
		UserAgent:       m.UserAgent,
		FingerprintHash: m.FingerprintHash,
		Token:           m.Token,
		TempoNaPagina:   m.TempoNaPagina,
		CriadoEm:        m.CriadoEm,
		AtualizadoEm:    m.AtualizadoEm,
	}
}

func fromDomainVoto(v domain.Voto) votoModel {
	return votoModel{
		ID:              string(v.ID),
		EnqueteID:       string(v.EnqueteID),
		OpcaoID:         string(v.OpcaoID),
		MultiplaEscolha: v.MultiplaEscolha,
		UsuarioID:       string(v.UsuarioID),
		OrigemIP:        v.OrigemIP,
		UserAgent:       v.UserAgent,
		FingerprintHash: v.FingerprintHash,
		Token:           v.Token,
		TempoNaPagina:   v.TempoNaPagina,
		CriadoEm:        v.CriadoEm,
		AtualizadoEm:    v.AtualizadoEm,
	}
}

// aplicarIdentidade monta o filtro da tupla. Voto anônimo forte também casa
// com linhas gravadas sem fingerprint do mesmo IP, senão bastaria tirar o
// cabeçalho para ganhar um segundo voto; o fraco casa com qualquer linha
// anônima do IP pelo mesmo motivo.
func aplicarIdentidade(q *gorm.DB, identidade domain.Identidade) *gorm.DB {
	switch identidade.Tipo {
	case domain.IdentidadeUsuario:
		return q.Where("usuario_id = ?", string(identidade.UsuarioID))
	case domain.IdentidadeAnonimaForte:
		return q.Where("usuario_id = '' AND origem_ip = ? AND (fingerprint_hash = ? OR fingerprint_hash = '')",
			identidade.OrigemIP, identidade.FingerprintHash)
	default:
		return q.Where("usuario_id = '' AND origem_ip = ?", identidade.OrigemIP)
	}
}

func (r *VotoRepository) Registrar(ctx context.Context, votos []domain.Voto) error {
	if len(votos) == 0 {
		return nil
	}
	models := make([]votoModel, len(votos))
	for i, v := range votos {
		models[i] = fromDomainVoto(v)
	}
	if err := r.db.WithContext(ctx).Create(&models).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrDuplicado
		}
		return fmt.Errorf("gorm votos: inserir: %w", err)
	}
	return nil
}

// Substituir troca o conjunto de votos da identidade em uma transação só:
// remove as linhas atuais e insere o conjunto novo.
func (r *VotoRepository) Substituir(ctx context.Context, enqueteID domain.EnqueteID, identidade domain.Identidade, votos []domain.Voto) error {
	models := make([]votoModel, len(votos))
	for i, v := range votos {
		models[i] = fromDomainVoto(v)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := aplicarIdentidade(tx.Where("enquete_id = ?", string(enqueteID)), identidade)
		if err := q.Delete(&votoModel{}).Error; err != nil {
			return err
		}
		if len(models) == 0 {
			return nil
		}
		return tx.Create(&models).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrDuplicado
		}
		return fmt.Errorf("gorm votos: substituir: %w", err)
	}
	return nil
}

func (r *VotoRepository) AtualizarOpcao(ctx context.Context, id domain.VotoID, opcaoID domain.OpcaoID) error {
	res := r.db.WithContext(ctx).Model(&votoModel{}).
		Where("id = ?", string(id)).
		Updates(map[string]any{
			"opcao_id":      string(opcaoID),
			"atualizado_em": gorm.Expr("CURRENT_TIMESTAMP"),
		})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return domain.ErrDuplicado
		}
		return fmt.Errorf("gorm votos: atualizar opcao: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNaoEncontrado
	}
	return nil
}

func (r *VotoRepository) BuscarPorIdentidade(ctx context.Context, enqueteID domain.EnqueteID, identidade domain.Identidade) ([]domain.Voto, error) {
	var models []votoModel
	q := aplicarIdentidade(r.db.WithContext(ctx).Where("enquete_id = ?", string(enqueteID)), identidade)
	if err := q.Order("criado_em ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("gorm votos: buscar identidade: %w", err)
	}

	votos := make([]domain.Voto, len(models))
	for i, model := range models {
		votos[i] = model.toDomain()
	}
	return votos, nil
}

// TotalPorOpcao conta direto na tabela de votos; é o caminho de leitura usado
// quando os contadores Redis não servem.
func (r *VotoRepository) TotalPorOpcao(ctx context.Context, enqueteID domain.EnqueteID) (map[domain.OpcaoID]int64, error) {
	type resultado struct {
		OpcaoID string
		Total   int64
	}
	var res []resultado
	if err := r.db.WithContext(ctx).
		Model(&votoModel{}).
		Select("opcao_id as opcao_id, COUNT(*) as total").
		Where("enquete_id = ?", string(enqueteID)).
		Group("opcao_id").
		Scan(&res).Error; err != nil {
		return nil, fmt.Errorf("gorm votos: total opcao: %w", err)
	}

	totais := make(map[domain.OpcaoID]int64, len(res))
	for _, item := range res {
		totais[domain.OpcaoID(item.OpcaoID)] = item.Total
	}
	return totais, nil
}

var _ domain.VotoRepository = (*VotoRepository)(nil)
