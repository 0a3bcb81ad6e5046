package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/lumberjack.v3"

	"gdax-tickplot/internal/config"
)

type Config struct {
	Level string
	// Filename is the rotating log file. Empty disables the file sink.
	Filename   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Console    bool
}

// FromApp maps the APP_LOG_* settings onto a logger config.
func FromApp(app config.AppConfig) Config {
	return Config{
		Level:      app.LogLevel,
		Filename:   app.LogFile,
		MaxSize:    app.LogMaxSize,
		MaxBackups: app.LogMaxBackups,
		MaxAge:     app.LogMaxAge,
		Console:    app.LogConsole,
	}
}

// New builds a zap logger writing JSON to a rotating file and, optionally, coloured text to stderr.
// The viewer keeps Console off because the chart owns the terminal.
func New(cfg Config) (*zap.Logger, error) {
	level := zap.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zapcore.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	}
	logLevel := zap.NewAtomicLevelAt(level)

	productionCfg := zap.NewProductionEncoderConfig()
	productionCfg.TimeKey = "timestamp"
	productionCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	developmentCfg := zap.NewDevelopmentEncoderConfig()
	developmentCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	var cores []zapcore.Core
	if cfg.Console {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(developmentCfg), zapcore.AddSync(os.Stderr), logLevel))
	}

	if cfg.Filename != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Filename), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		fileHandler, err := lumberjack.New(
			lumberjack.WithFileName(cfg.Filename),
			lumberjack.WithMaxBytes(int64(cfg.MaxSize*1024*1024)),
			lumberjack.WithMaxBackups(cfg.MaxBackups),
			lumberjack.WithMaxDays(cfg.MaxAge),
			lumberjack.WithCompress(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create file handler: %w", err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(productionCfg), zapcore.AddSync(fileHandler), logLevel))
	}

	if len(cores) == 0 {
		return zap.NewNop(), nil
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}
