package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var Logger = logrus.New()

// CustomFormatter implements the logrus.Formatter interface
type CustomFormatter struct {
	SystemName string
	Location   *time.Location
}

// Format implements the logrus.Formatter interface
func (f *CustomFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b *bytes.Buffer
	if entry.Buffer != nil {
		b = entry.Buffer
	} else {
		b = &bytes.Buffer{}
	}

	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}
	localTime := entry.Time.In(loc)

	b.WriteString(fmt.Sprintf("Date: %s, Time: %s, ", localTime.Format("2006-01-02"), localTime.Format("15:04:05")))
	b.WriteString(fmt.Sprintf("Event Source: %s, ", f.SystemName))
	b.WriteString(fmt.Sprintf("Event Type: %s, ", strings.ToUpper(entry.Level.String())))
	b.WriteString(fmt.Sprintf("Event ID: %s, ", uuid.New().String()))
	b.WriteString(fmt.Sprintf("Message: %s", entry.Message))

	for k, v := range entry.Data {
		b.WriteString(fmt.Sprintf(", %s=%v", k, v))
	}

	if entry.HasCaller() {
		b.WriteString(fmt.Sprintf(", Location: %s:%d in %s", entry.Caller.File, entry.Caller.Line, entry.Caller.Function))
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

// Options controls where and how the service logs.
type Options struct {
	SystemName string
	File       string
	Level      string
	Stdout     bool
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func InitLogger(opts Options) {
	var writers []io.Writer

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0700); err != nil {
			logrus.Fatalf("Failed to create log directory: %v", err)
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    withDefault(opts.MaxSizeMB, 10),
			MaxBackups: withDefault(opts.MaxBackups, 3),
			MaxAge:     withDefault(opts.MaxAgeDays, 28),
			Compress:   true,
		})
	}
	if opts.Stdout || len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	Logger.SetOutput(io.MultiWriter(writers...))
	Logger.SetFormatter(&CustomFormatter{SystemName: opts.SystemName})

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	Logger.SetLevel(level)
	Logger.SetReportCaller(true)
}

func withDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
