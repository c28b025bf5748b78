package domain

import "errors"

var (
	// ErrNaoEncontrado é devolvido pelos repositórios quando o registro não
	// existe.
	ErrNaoEncontrado = errors.New("registro nao encontrado")

	// ErrDuplicado traduz uma violação de unicidade do armazenamento. O
	// índice único é a trava real de concorrência; quem chama trata a
	// violação como evento recuperável.
	ErrDuplicado = errors.New("registro duplicado")

	// ErrNaoAutenticado indica voto sem usuário em enquete que exige login.
	ErrNaoAutenticado = errors.New("voto exige usuario autenticado")
)
