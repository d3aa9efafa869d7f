package logger

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger define a interface para logging estruturado.
// A aplicação (Handler, Service, Repository) deve depender apenas desta interface.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, err error)
	Fatal(msg string, err error)
}

// ZapLogger é a implementação de Logger sobre o go.uber.org/zap, com saída JSON.
type ZapLogger struct {
	z *zap.Logger
}

// NewLogger cria o Logger da aplicação escrevendo JSON em stdout.
// Esta função é chamada no main.go e nos testes.
func NewLogger(level string) Logger {
	return NewLoggerWithWriter(level, os.Stdout)
}

// NewLoggerWithWriter cria o Logger escrevendo no destino informado.
func NewLoggerWithWriter(level string, w io.Writer) Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		CallerKey:      "caller",
		StacktraceKey:  "stacktrace",
		FunctionKey:    zapcore.OmitKey,
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(w), parseLevel(level))
	// AddCallerSkip(1) faz o caller apontar para quem chamou o wrapper, não para este arquivo.
	return &ZapLogger{z: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))}
}

// NewNop retorna um Logger que descarta tudo.
func NewNop() Logger {
	return &ZapLogger{z: zap.NewNop()}
}

// parseLevel converte o nível textual; valores desconhecidos caem em info.
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func toZapFields(fields map[string]interface{}) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	return zf
}

// Implementações da Interface Logger

func (l *ZapLogger) Debug(msg string, fields map[string]interface{}) {
	l.z.Debug(msg, toZapFields(fields)...)
}

func (l *ZapLogger) Info(msg string, fields map[string]interface{}) {
	l.z.Info(msg, toZapFields(fields)...)
}

func (l *ZapLogger) Warn(msg string, fields map[string]interface{}) {
	l.z.Warn(msg, toZapFields(fields)...)
}

func (l *ZapLogger) Error(msg string, err error) {
	l.z.Error(msg, zap.Error(err))
}

// Fatal registra o erro e encerra o processo.
func (l *ZapLogger) Fatal(msg string, err error) {
	l.z.Fatal(msg, zap.Error(err))
}

// Sync descarrega buffers pendentes; chamado no encerramento do main.go.
func (l *ZapLogger) Sync() error {
	return l.z.Sync()
}
