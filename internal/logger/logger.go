package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"imghost/internal/config"
)

var Log = zerolog.Nop()

// Component sub-loggers. They stay no-ops until Init is called.
var (
	Firewall  = zerolog.Nop()
	RateLimit = zerolog.Nop()
	Storage   = zerolog.Nop()
	DB        = zerolog.Nop()
	Cache     = zerolog.Nop()
	Scheduler = zerolog.Nop()
	HTTP      = zerolog.Nop()
)

func Init(cfg config.LogConfig) {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	var writer io.Writer
	if cfg.Mode == "debug" || cfg.FilePath == "" {
		writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	} else if err := os.MkdirAll(filepath.Dir(cfg.FilePath), config.DefaultDirPermissions); err != nil {
		writer = os.Stderr
	} else {
		writer = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
	}

	Log = zerolog.New(writer).With().Timestamp().Logger()

	Firewall = Log.With().Str("module", "firewall").Logger()
	RateLimit = Log.With().Str("module", "ratelimit").Logger()
	Storage = Log.With().Str("module", "storage").Logger()
	DB = Log.With().Str("module", "database").Logger()
	Cache = Log.With().Str("module", "cache").Logger()
	Scheduler = Log.With().Str("module", "scheduler").Logger()
	HTTP = Log.With().Str("module", "http").Logger()
}

func parseLevel(s string) zerolog.Level {
	switch s {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
