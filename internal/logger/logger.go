package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger  *zap.Logger
	mu      sync.Mutex
	initErr error
)

// Config holds logger configuration
type Config struct {
	Level       zapcore.Level
	Console     bool
	FileOutput  bool
	Filename    string
	MaxSize     int  // megabytes
	MaxAge      int  // days
	MaxBackups  int
	Compress    bool
	Development bool
}

const (
	DefaultMaxSize    = 20
	DefaultMaxAge     = 14
	DefaultMaxBackups = 5
)

// DefaultFilename is where file output goes unless overridden.
func DefaultFilename() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("logs", "workflow.log")
	}
	return filepath.Join(home, ".workflow", "logs", "workflow.log")
}

type Option func(*Config)

// WithLevel parses level names; unknown names fall back to info.
func WithLevel(level string) Option {
	return func(c *Config) {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			lvl = zapcore.InfoLevel
		}
		c.Level = lvl
	}
}

func WithConsole(enabled bool) Option {
	return func(c *Config) { c.Console = enabled }
}

// WithFile enables rotated JSON file output. An empty filename keeps the default.
func WithFile(enabled bool, filename string) Option {
	return func(c *Config) {
		c.FileOutput = enabled
		if filename != "" {
			c.Filename = filename
		}
	}
}

func WithRotation(maxSize, maxAge, maxBackups int, compress bool) Option {
	return func(c *Config) {
		c.MaxSize = maxSize
		c.MaxAge = maxAge
		c.MaxBackups = maxBackups
		c.Compress = compress
	}
}

// InitForCLI installs a human-readable stderr logger and, optionally, a file logger.
func InitForCLI(level string, fileOutput bool, filename string) (*zap.Logger, error) {
	return InitWithOptions(
		WithLevel(level),
		WithConsole(true),
		WithFile(fileOutput, filename),
	)
}

// New builds a logger without touching the package-level instance.
func New(opts ...Option) (*zap.Logger, error) {
	config := &Config{
		Level:      zapcore.InfoLevel,
		Console:    true,
		Filename:   DefaultFilename(),
		MaxSize:    DefaultMaxSize,
		MaxAge:     DefaultMaxAge,
		MaxBackups: DefaultMaxBackups,
		Compress:   true,
	}
	for _, opt := range opts {
		opt(config)
	}

	var cores []zapcore.Core

	if config.Console {
		consoleConfig := zap.NewDevelopmentEncoderConfig()
		consoleConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		consoleConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleConfig.EncodeCaller = nil
		consoleConfig.CallerKey = ""

		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleConfig),
			zapcore.Lock(os.Stderr),
			config.Level,
		))
	}

	if config.FileOutput {
		if err := os.MkdirAll(filepath.Dir(config.Filename), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create logs directory: %w", err)
		}

		fileEncoder := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
			TimeKey:      "ts",
			LevelKey:     "level",
			NameKey:      "logger",
			CallerKey:    "caller",
			MessageKey:   "msg",
			EncodeLevel:  zapcore.LowercaseLevelEncoder,
			EncodeTime:   zapcore.ISO8601TimeEncoder,
			EncodeCaller: zapcore.ShortCallerEncoder,
		})

		cores = append(cores, zapcore.NewCore(
			fileEncoder,
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   config.Filename,
				MaxSize:    config.MaxSize,
				MaxAge:     config.MaxAge,
				MaxBackups: config.MaxBackups,
				Compress:   config.Compress,
			}),
			config.Level,
		))
	}

	if len(cores) == 0 {
		return zap.NewNop(), nil
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// InitWithOptions builds a logger and installs it as the package-level instance.
func InitWithOptions(opts ...Option) (*zap.Logger, error) {
	l, err := New(opts...)

	mu.Lock()
	defer mu.Unlock()
	initErr = err
	if err == nil {
		logger = l
	}
	return l, err
}

// Get returns the package logger, falling back to an info-level console logger.
func Get() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger, initErr = New()
		if initErr != nil {
			logger = zap.NewNop()
		}
	}
	return logger
}

// Sync flushes any buffered log entries
func Sync() error {
	mu.Lock()
	defer mu.Unlock()
	if logger != nil {
		return logger.Sync()
	}
	return nil
}

func Debug(msg string, fields ...zap.Field) { Get().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { Get().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { Get().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { Get().Error(msg, fields...) }
func With(fields ...zap.Field) *zap.Logger  { return Get().With(fields...) }
