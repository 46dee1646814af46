package utils

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const DefaultLogFile = "flasharb.log"

var (
	log  *zap.Logger
	once sync.Once
)

// InitLogger initializes the global logger. logFile receives every entry and
// <name>-error.log the errors; an empty logFile logs to the console only.
func InitLogger(debug bool, logFile string) *zap.Logger {
	once.Do(func() {
		logger, err := buildLogger(debug, logFile)
		if err != nil {
			panic(err)
		}
		log = logger
	})

	return log
}

func buildLogger(debug bool, logFile string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if debug {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}
	if logFile != "" {
		config.OutputPaths = append(config.OutputPaths, logFile)
		config.ErrorOutputPaths = append(config.ErrorOutputPaths, ErrorLogFile(logFile))
	}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.StacktraceKey = "stacktrace"

	return config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
}

// ErrorLogFile derives the error log path: flasharb.log -> flasharb-error.log.
func ErrorLogFile(logFile string) string {
	if strings.HasSuffix(logFile, ".log") {
		return strings.TrimSuffix(logFile, ".log") + "-error.log"
	}
	return logFile + "-error"
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if log == nil {
		return InitLogger(false, DefaultLogFile)
	}
	return log
}

// CleanupLogger flushes any buffered log entries
func CleanupLogger() {
	if log != nil {
		_ = log.Sync()
	}
}
