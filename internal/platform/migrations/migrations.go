// Pacote migrations centraliza as versões gormigrate aplicadas na inicialização.
package migrations

import (
	"fmt"

	gormigrate "github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/marcelojr/urna-aberta/internal/domain"
)

func Run(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("migrations: db nulo")
	}

	// Usamos gormigrate para versionar as migrations sem depender de AutoMigrate direto em produção.
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "202506010001_esquema_inicial",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(
					&domain.Enquete{},
					&domain.Opcao{},
					&domain.Voto{},
					&domain.TentativaVoto{},
				)
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("tentativas_voto", "votos", "opcoes", "enquetes")
			},
		},
		{
			// Primeira forma dos índices parciais de unicidade, com opcao_id na
			// chave; a 202506010003 refaz a forma separada por modo de escolha.
			// Sintaxe aceita por Postgres e SQLite, então os testes com :memory:
			// passam pelo mesmo caminho.
			ID: "202506010002_indices_de_unicidade",
			Migrate: func(tx *gorm.DB) error {
				stmts := []string{
					`CREATE UNIQUE INDEX IF NOT EXISTS uniq_votos_usuario
						ON votos (enquete_id, usuario_id, opcao_id)
						WHERE usuario_id <> ''`,
					`CREATE UNIQUE INDEX IF NOT EXISTS uniq_votos_anonimo
						ON votos (enquete_id, origem_ip, fingerprint_hash, opcao_id)
						WHERE usuario_id = ''`,
				}
				for _, stmt := range stmts {
					if err := tx.Exec(stmt).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				for _, idx := range []string{"uniq_votos_usuario", "uniq_votos_anonimo"} {
					if err := tx.Exec(fmt.Sprintf("DROP INDEX IF EXISTS %s", idx)).Error; err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			// Refaz a unicidade separada por modo da enquete. Em escolha única o
			// índice cobre a identidade inteira, sem opcao_id, então dois inserts
			// concorrentes da mesma identidade colidem mesmo apontando para opções
			// diferentes. Em múltipla escolha o opcao_id permanece no índice para
			// permitir uma linha por opção. O predicado usa a coluna
			// multipla_escolha replicada na linha do voto; o UPDATE preenche as
			// linhas anteriores a esta versão a partir da enquete, e os DELETE
			// resolvem duplicatas que o esquema antigo deixou passar em escolha
			// única, mantendo a linha mais recente (id ULID maior) antes de criar
			// os índices.
			ID: "202506010003_unicidade_por_modo_de_escolha",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&domain.Voto{}); err != nil {
					return err
				}
				stmts := []string{
					`UPDATE votos
						SET multipla_escolha = COALESCE(
							(SELECT e.multipla_escolha FROM enquetes e WHERE e.id = votos.enquete_id),
							multipla_escolha)`,
					`DELETE FROM votos
						WHERE usuario_id = '' AND NOT multipla_escolha
						AND EXISTS (SELECT 1 FROM votos v2
							WHERE v2.enquete_id = votos.enquete_id
							AND v2.origem_ip = votos.origem_ip
							AND v2.fingerprint_hash = votos.fingerprint_hash
							AND v2.usuario_id = ''
							AND NOT v2.multipla_escolha
							AND v2.id > votos.id)`,
					`DELETE FROM votos
						WHERE usuario_id <> '' AND NOT multipla_escolha
						AND EXISTS (SELECT 1 FROM votos v2
							WHERE v2.enquete_id = votos.enquete_id
							AND v2.usuario_id = votos.usuario_id
							AND NOT v2.multipla_escolha
							AND v2.id > votos.id)`,
					`DROP INDEX IF EXISTS uniq_votos_usuario`,
					`DROP INDEX IF EXISTS uniq_votos_anonimo`,
					`CREATE UNIQUE INDEX IF NOT EXISTS uniq_votos_usuario
						ON votos (enquete_id, usuario_id)
						WHERE usuario_id <> '' AND NOT multipla_escolha`,
					`CREATE UNIQUE INDEX IF NOT EXISTS uniq_votos_usuario_multi
						ON votos (enquete_id, usuario_id, opcao_id)
						WHERE usuario_id <> '' AND multipla_escolha`,
					`CREATE UNIQUE INDEX IF NOT EXISTS uniq_votos_anonimo
						ON votos (enquete_id, origem_ip, fingerprint_hash)
						WHERE usuario_id = '' AND NOT multipla_escolha`,
					`CREATE UNIQUE INDEX IF NOT EXISTS uniq_votos_anonimo_multi
						ON votos (enquete_id, origem_ip, fingerprint_hash, opcao_id)
						WHERE usuario_id = '' AND multipla_escolha`,
				}
				for _, stmt := range stmts {
					if err := tx.Exec(stmt).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				stmts := []string{
					`DROP INDEX IF EXISTS uniq_votos_usuario`,
					`DROP INDEX IF EXISTS uniq_votos_usuario_multi`,
					`DROP INDEX IF EXISTS uniq_votos_anonimo`,
					`DROP INDEX IF EXISTS uniq_votos_anonimo_multi`,
					`CREATE UNIQUE INDEX IF NOT EXISTS uniq_votos_usuario
						ON votos (enquete_id, usuario_id, opcao_id)
						WHERE usuario_id <> ''`,
					`CREATE UNIQUE INDEX IF NOT EXISTS uniq_votos_anonimo
						ON votos (enquete_id, origem_ip, fingerprint_hash, opcao_id)
						WHERE usuario_id = ''`,
				}
				for _, stmt := range stmts {
					if err := tx.Exec(stmt).Error; err != nil {
						return err
					}
				}
				return nil
			},
		},
	})

	if err := m.Migrate(); err != nil {
		return fmt.Errorf("migrations: falha ao aplicar: %w", err)
	}

	return nil
}
