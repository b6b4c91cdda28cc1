package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

var (
	logger     *logrus.Logger
	loggerOnce sync.Once
	fileLogger *FileLogger
)

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

// FileLogger is a logrus hook appending entries as JSON lines to a file,
// for local-otel integration
type FileLogger struct {
	mu       sync.Mutex
	file     *os.File
	encoder  *json.Encoder
	filePath string
}

// InitLogger initializes the global logger. Only the first call has an
// effect.
func InitLogger(cfg *Config) error {
	var err error
	loggerOnce.Do(func() {
		logger = NewLogger(cfg, os.Stderr)

		// If file export is enabled, create file logger
		if cfg.ExportToFile && cfg.LogsFilePath != "" {
			fileLogger, err = NewFileLogger(cfg.LogsFilePath)
			if err != nil {
				logger.WithError(err).Error("Failed to create file logger")
			} else {
				logger.AddHook(fileLogger)
			}
		}
	})
	return err
}

// NewLogger builds a logger writing to out with the level and format of
// cfg. Logging disabled in cfg discards everything below warnings.
func NewLogger(cfg *Config, out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	if !cfg.EnableLogging && level > logrus.WarnLevel {
		level = logrus.WarnLevel
	}
	l.SetLevel(level)

	if cfg.LogFormat == "text" {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "@timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}

	l.AddHook(&serviceHook{fields: logrus.Fields{
		"service.name":    cfg.ServiceName,
		"service.version": cfg.ServiceVersion,
		"environment":     cfg.Environment,
	}})
	return l
}

// serviceHook stamps every entry with the service identity
type serviceHook struct {
	fields logrus.Fields
}

func (h *serviceHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *serviceHook) Fire(entry *logrus.Entry) error {
	for k, v := range h.fields {
		if _, ok := entry.Data[k]; !ok {
			entry.Data[k] = v
		}
	}
	return nil
}

// NewFileLogger creates a new file logger
func NewFileLogger(filePath string) (*FileLogger, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	return &FileLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		filePath: filePath,
	}, nil
}

// Levels returns the log levels this hook is interested in
func (f *FileLogger) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire writes one entry
func (f *FileLogger) Fire(entry *logrus.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data := make(map[string]interface{}, len(entry.Data)+3)
	for k, v := range entry.Data {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		data[k] = v
	}
	data["@timestamp"] = entry.Time.Format(timestampFormat)
	data["level"] = entry.Level.String()
	data["message"] = entry.Message

	return f.encoder.Encode(data)
}

// Close closes the file logger
func (f *FileLogger) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Close()
}

// L returns the global logger instance
func L() *logrus.Logger {
	if logger == nil {
		return logrus.StandardLogger()
	}
	return logger
}

// WithContext adds trace information to the logger
func WithContext(ctx context.Context) *logrus.Entry {
	entry := L().WithContext(ctx)

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		entry = entry.WithFields(logrus.Fields{
			"trace.id": span.SpanContext().TraceID().String(),
			"span.id":  span.SpanContext().SpanID().String(),
		})
	}

	return entry
}

// WithFields adds fields to the logger
func WithFields(fields logrus.Fields) *logrus.Entry {
	return L().WithFields(fields)
}

// WithError adds an error to the logger
func WithError(err error) *logrus.Entry {
	return L().WithError(err)
}

// CloseLogger closes any open resources
func CloseLogger() error {
	if fileLogger != nil {
		return fileLogger.Close()
	}
	return nil
}
