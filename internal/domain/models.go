package domain

import (
	"time"
)

type (
	EnqueteID string
	OpcaoID   string
	VotoID    string
	UsuarioID string
)

type Enquete struct {
	ID                EnqueteID `gorm:"column:id;type:char(26);primaryKey"`
	Pergunta          string    `gorm:"column:pergunta;type:text;not null"`
	Descricao         string    `gorm:"column:descricao;type:text"`
	Tipo              string    `gorm:"column:tipo;type:text;not null;default:padrao"`
	Anonima           bool      `gorm:"column:anonima;not null;default:true"`
	MultiplaEscolha   bool      `gorm:"column:multipla_escolha;not null;default:false"`
	PermitirAlteracao bool      `gorm:"column:permitir_alteracao;not null;default:true"`
	Inicio            time.Time `gorm:"column:inicio;not null"`
	Fim               time.Time `gorm:"column:fim;not null"`
	Opcoes            []Opcao   `gorm:"foreignKey:EnqueteID;constraint:OnDelete:CASCADE"`
	Ativa             bool      `gorm:"column:ativa;not null;default:true"`
	CriadoEm          time.Time `gorm:"column:criado_em;autoCreateTime"`
	AtualizadoEm      time.Time `gorm:"column:atualizado_em;autoUpdateTime"`
}

type Opcao struct {
	ID           OpcaoID   `gorm:"column:id;type:char(26);primaryKey"`
	EnqueteID    EnqueteID `gorm:"column:enquete_id;type:char(26);not null;index"`
	Texto        string    `gorm:"column:texto;type:text;not null"`
	Ordem        int       `gorm:"column:ordem;not null;default:0"`
	CriadoEm     time.Time `gorm:"column:criado_em;autoCreateTime"`
	AtualizadoEm time.Time `gorm:"column:atualizado_em;autoUpdateTime"`
}

// Voto guarda uma escolha confirmada. Enquetes de múltipla escolha geram uma
// linha por opção selecionada, todas com a mesma identidade. MultiplaEscolha
// replica o modo da enquete na linha para que os índices parciais de unicidade
// saibam qual forma aplicar (ver migração 202506010003).
type Voto struct {
	ID              VotoID    `gorm:"column:id;type:char(26);primaryKey"`
	EnqueteID       EnqueteID `gorm:"column:enquete_id;type:char(26);not null;index:idx_votos_enquete"`
	OpcaoID         OpcaoID   `gorm:"column:opcao_id;type:char(26);not null;index:idx_votos_opcao"`
	MultiplaEscolha bool      `gorm:"column:multipla_escolha;not null;default:false"`
	UsuarioID       UsuarioID `gorm:"column:usuario_id;type:char(26);not null;default:''"`
	OrigemIP        string    `gorm:"column:origem_ip;type:text;not null;default:''"`
	UserAgent       string    `gorm:"column:user_agent;type:text"`
	FingerprintHash string    `gorm:"column:fingerprint_hash;type:char(64);not null;default:''"`
	Token           string    `gorm:"column:token;type:text"`
	TempoNaPagina   *float64  `gorm:"column:tempo_na_pagina"`
	CriadoEm        time.Time `gorm:"column:criado_em;autoCreateTime;index:idx_votos_enquete_criado_em,priority:2"`
	AtualizadoEm    time.Time `gorm:"column:atualizado_em;autoUpdateTime"`
}

// TentativaVoto é o registro de rate limit por tupla de identidade. A linha
// expira logicamente quando UltimaEm sai da janela; a remoção física fica com
// o worker de limpeza.
type TentativaVoto struct {
	EnqueteID       EnqueteID `gorm:"column:enquete_id;type:char(26);primaryKey"`
	OrigemIP        string    `gorm:"column:origem_ip;type:text;primaryKey"`
	FingerprintHash string    `gorm:"column:fingerprint_hash;type:char(64);primaryKey;not null;default:''"`
	Contagem        int       `gorm:"column:contagem;not null;default:0"`
	UltimaEm        time.Time `gorm:"column:ultima_em;not null;index:idx_tentativas_ultima_em"`
}

type Parcial struct {
	EnqueteID  EnqueteID
	OpcaoID    OpcaoID
	Total      int64
	Percentual float64
}

// VotarParams reúne tudo que chega com uma submissão de voto, já extraído da
// camada de transporte.
type VotarParams struct {
	EnqueteID       EnqueteID
	Opcoes          []OpcaoID
	UsuarioID       UsuarioID
	OrigemIP        string
	UserAgent       string
	FingerprintHash string
	Token           string
	TempoNaPagina   *float64
}

type ResultadoVoto struct {
	Novo  bool
	Votos []Voto
}

type StatusVoto struct {
	JaVotou bool
	Opcoes  []OpcaoID
}

func (Enquete) TableName() string { return "enquetes" }

func (Opcao) TableName() string { return "opcoes" }

func (Voto) TableName() string { return "votos" }

func (TentativaVoto) TableName() string { return "tentativas_voto" }
