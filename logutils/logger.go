package logutils

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	_zapLogger     *zap.Logger
	_initZapLogger sync.Once
)

// ZapLogger returns the process-wide logger. Until InitLogger is called it
// writes info and above to stderr.
func ZapLogger() *zap.Logger {
	_initZapLogger.Do(func() {
		if _zapLogger == nil {
			_zapLogger = newZapLogger(zapcore.AddSync(os.Stderr), zapcore.InfoLevel, false)
		}
	})
	return _zapLogger
}

// LogSettings mirrors params.LogConfig so that logutils does not import params.
type LogSettings struct {
	Enabled         bool
	Level           string
	File            string
	MaxSize         int
	MaxBackups      int
	CompressRotated bool
	Development     bool
}

// InitLogger replaces the process-wide logger. Must be called before any
// component captures ZapLogger().Named(...).
func InitLogger(settings LogSettings) error {
	if !settings.Enabled {
		setLogger(zap.NewNop())
		return nil
	}

	level, err := lvlFromString(settings.Level)
	if err != nil {
		return err
	}

	var syncer zapcore.WriteSyncer
	if settings.File != "" {
		syncer = ZapSyncerWithRotation(FileOptions{
			Filename:   settings.File,
			MaxSize:    settings.MaxSize,
			MaxBackups: settings.MaxBackups,
			Compress:   settings.CompressRotated,
		})
	} else {
		syncer = zapcore.AddSync(os.Stderr)
	}

	setLogger(newZapLogger(syncer, level, settings.Development))
	return nil
}

func setLogger(logger *zap.Logger) {
	_initZapLogger.Do(func() {})
	_zapLogger = logger
}

func newZapLogger(syncer zapcore.WriteSyncer, level zapcore.Level, development bool) *zap.Logger {
	var encoderConfig zapcore.EncoderConfig
	var encoder zapcore.Encoder
	if development {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}
	core := zapcore.NewCore(encoder, syncer, zap.NewAtomicLevelAt(level))
	return zap.New(core, zap.AddCaller())
}

func lvlFromString(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	// geth-style names are accepted for configs carried over from node setups
	switch strings.ToLower(level) {
	case "trace":
		return zapcore.DebugLevel, nil
	case "eror":
		return zapcore.ErrorLevel, nil
	case "crit":
		return zapcore.FatalLevel, nil
	}
	return zapcore.ParseLevel(strings.ToLower(level))
}
