package utils

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	logLevelDebugStringConstant          = "debug"
	logLevelInfoStringConstant           = "info"
	logLevelWarnStringConstant           = "warn"
	logLevelErrorStringConstant          = "error"
	logFormatStructuredStringConstant    = "structured"
	logFormatConsoleStringConstant       = "console"
	structuredEncodingNameConstant       = "json"
	consoleEncodingNameConstant          = "console"
	unsupportedLogLevelTemplateConstant  = "unsupported log level: %s"
	unsupportedLogFormatTemplateConstant = "unsupported log format: %s"
)

// LogLevel selects the minimum severity migration commands emit.
type LogLevel string

// Log levels accepted by the --log-level flag and the common.log_level key.
const (
	LogLevelDebug LogLevel = LogLevel(logLevelDebugStringConstant)
	LogLevelInfo  LogLevel = LogLevel(logLevelInfoStringConstant)
	LogLevelWarn  LogLevel = LogLevel(logLevelWarnStringConstant)
	LogLevelError LogLevel = LogLevel(logLevelErrorStringConstant)
)

// LogFormat selects the output encoding of the run logs.
type LogFormat string

// Log formats accepted by the --log-format flag and the common.log_format key.
const (
	LogFormatStructured LogFormat = LogFormat(logFormatStructuredStringConstant)
	LogFormatConsole    LogFormat = LogFormat(logFormatConsoleStringConstant)
)

// LoggerFactory builds the zap loggers shared by the migration and cache
// priming commands.
type LoggerFactory struct{}

// NewLoggerFactory constructs a new logger factory.
func NewLoggerFactory() *LoggerFactory {
	return &LoggerFactory{}
}

// CreateLogger builds a logger for the requested level and format. Step and
// run durations are encoded as wall-clock strings in both formats so the
// timing fields of run summaries stay readable.
func (factory *LoggerFactory) CreateLogger(requestedLogLevel LogLevel, requestedLogFormat LogFormat) (*zap.Logger, error) {
	minimumLevel, levelError := parseLogLevel(requestedLogLevel)
	if levelError != nil {
		return nil, levelError
	}

	encoding, encodingError := resolveLogEncoding(requestedLogFormat)
	if encodingError != nil {
		return nil, encodingError
	}

	loggerConfiguration := zap.NewProductionConfig()
	loggerConfiguration.Level = zap.NewAtomicLevelAt(minimumLevel)
	loggerConfiguration.Encoding = encoding
	loggerConfiguration.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	if requestedLogFormat == LogFormatConsole {
		loggerConfiguration.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		loggerConfiguration.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	return loggerConfiguration.Build()
}

func parseLogLevel(requestedLogLevel LogLevel) (zapcore.Level, error) {
	switch requestedLogLevel {
	case LogLevelDebug:
		return zapcore.DebugLevel, nil
	case LogLevelInfo:
		return zapcore.InfoLevel, nil
	case LogLevelWarn:
		return zapcore.WarnLevel, nil
	case LogLevelError:
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InvalidLevel, fmt.Errorf(unsupportedLogLevelTemplateConstant, requestedLogLevel)
	}
}

func resolveLogEncoding(requestedLogFormat LogFormat) (string, error) {
	switch requestedLogFormat {
	case LogFormatStructured:
		return structuredEncodingNameConstant, nil
	case LogFormatConsole:
		return consoleEncodingNameConstant, nil
	default:
		return "", fmt.Errorf(unsupportedLogFormatTemplateConstant, requestedLogFormat)
	}
}
