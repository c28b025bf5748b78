package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/marcelojr/urna-aberta/internal/domain"
)

// TentativaRepository guarda o registro de rate limit por tupla de
// identidade. A expiração é lógica: quem lê decide se a janela ainda vale;
// o worker remove as linhas velhas depois.
type TentativaRepository struct {
	db *gorm.DB
}

func NewTentativaRepository(db *gorm.DB) *TentativaRepository {
	return &TentativaRepository{db: db}
}

type tentativaModel struct {
	EnqueteID       string    `gorm:"column:enquete_id;primaryKey"`
	OrigemIP        string    `gorm:"column:origem_ip;primaryKey"`
	FingerprintHash string    `gorm:"column:fingerprint_hash;primaryKey"`
	Contagem        int       `gorm:"column:contagem"`
	UltimaEm        time.Time `gorm:"column:ultima_em"`
}

func (tentativaModel) TableName() string {
	return "tentativas_voto"
}

func (m tentativaModel) toDomain() domain.TentativaVoto {
	return domain.TentativaVoto{
		EnqueteID:       domain.EnqueteID(m.EnqueteID),
		OrigemIP:        m.OrigemIP,
		FingerprintHash: m.FingerprintHash,
		Contagem:        m.Contagem,
		UltimaEm:        m.UltimaEm,
	}
}

func (r *TentativaRepository) Obter(ctx context.Context, enqueteID domain.EnqueteID, origemIP, fingerprintHash string) (domain.TentativaVoto, error) {
	var model tentativaModel
	err := r.db.WithContext(ctx).
		First(&model, "enquete_id = ? AND origem_ip = ? AND fingerprint_hash = ?",
			string(enqueteID), origemIP, fingerprintHash).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.TentativaVoto{}, domain.ErrNaoEncontrado
		}
		return domain.TentativaVoto{}, fmt.Errorf("gorm tentativas: buscar: %w", err)
	}
	return model.toDomain(), nil
}

// Incrementar faz upsert da tupla: cria com contagem 1 ou soma 1 na linha
// viva. reiniciar força a contagem de volta para 1 quando a janela anterior
// já expirou. O ON CONFLICT cobre duas primeiras tentativas concorrentes.
func (r *TentativaRepository) Incrementar(ctx context.Context, enqueteID domain.EnqueteID, origemIP, fingerprintHash string, agora time.Time, reiniciar bool) (domain.TentativaVoto, error) {
	assignments := map[string]any{"ultima_em": agora}
	if reiniciar {
		assignments["contagem"] = 1
	} else {
		assignments["contagem"] = gorm.Expr("contagem + 1")
	}

	model := tentativaModel{
		EnqueteID:       string(enqueteID),
		OrigemIP:        origemIP,
		FingerprintHash: fingerprintHash,
		Contagem:        1,
		UltimaEm:        agora,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "enquete_id"},
			{Name: "origem_ip"},
			{Name: "fingerprint_hash"},
		},
		DoUpdates: clause.Assignments(assignments),
	}).Create(&model).Error
	if err != nil {
		return domain.TentativaVoto{}, fmt.Errorf("gorm tentativas: incrementar: %w", err)
	}

	return r.Obter(ctx, enqueteID, origemIP, fingerprintHash)
}

// Reiniciar zera a contagem mas preserva ultima_em: o piso de intervalo entre
// submissões precisa do instante da última mesmo depois de um voto aceito. A
// linha zerada sai da base pelo worker de limpeza.
func (r *TentativaRepository) Reiniciar(ctx context.Context, enqueteID domain.EnqueteID, origemIP, fingerprintHash string) error {
	err := r.db.WithContext(ctx).Model(&tentativaModel{}).
		Where("enquete_id = ? AND origem_ip = ? AND fingerprint_hash = ?",
			string(enqueteID), origemIP, fingerprintHash).
		Update("contagem", 0).Error
	if err != nil {
		return fmt.Errorf("gorm tentativas: reiniciar: %w", err)
	}
	return nil
}

func (r *TentativaRepository) RemoverExpiradas(ctx context.Context, antesDe time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("ultima_em < ?", antesDe).
		Delete(&tentativaModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("gorm tentativas: remover expiradas: %w", res.Error)
	}
	return res.RowsAffected, nil
}

var _ domain.TentativaRepository = (*TentativaRepository)(nil)
