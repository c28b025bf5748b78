// Pacote logger expõe o slog JSON compartilhado pelos binários. As decisões de
// admissão de voto saem com campos estruturados, então api e worker escrevem
// pelo mesmo handler em vez de cada um montar o seu.
package logger

import (
	"log/slog"
	"os"
)

var (
	defaultLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
)

// L entrega o logger para quem prefere carregar a dependência explícita.
func L() *slog.Logger {
	return defaultLogger
}

// SetLevel reconstrói o handler; chamada uma vez no boot, depois de ler a
// configuração.
func SetLevel(level slog.Level) {
	defaultLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}

// Fatal é reservado ao boot; depois que o servidor aceita votos, erro vira log
// e resposta, nunca queda do processo.
func Fatal(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
	os.Exit(1)
}
