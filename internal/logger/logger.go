package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LoggerConfig struct {
	Debug bool

	// File, when set, receives a copy of every log line and is rotated by size.
	File       string
	MaxSizeMb  int
	MaxBackups int
	MaxAgeDays int
}

func level(cfg *LoggerConfig) zap.AtomicLevel {
	if cfg.Debug {
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return zap.NewAtomicLevelAt(zap.InfoLevel)
}

func encoderConfig() zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	return ec
}

func NewLogger(cfg *LoggerConfig, options ...zap.Option) (*zap.Logger, error) {
	mergedOptions := []zap.Option{
		zap.WithCaller(true),
	}
	mergedOptions = append(mergedOptions, options...)

	if cfg.File == "" {
		c := zap.NewProductionConfig()
		c.EncoderConfig = encoderConfig()
		c.Level = level(cfg)
		return c.Build(mergedOptions...)
	}

	rotating := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    withDefault(cfg.MaxSizeMb, 100),
		MaxBackups: withDefault(cfg.MaxBackups, 5),
		MaxAge:     withDefault(cfg.MaxAgeDays, 30),
		Compress:   true,
	}

	lvl := level(cfg)
	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.Lock(os.Stderr), lvl),
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(rotating), lvl),
	)
	return zap.New(core, append(mergedOptions, zap.AddStacktrace(zap.ErrorLevel))...), nil
}

func withDefault(v int, d int) int {
	if v <= 0 {
		return d
	}
	return v
}
