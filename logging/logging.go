// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package logging provides a small leveled-logger interface so the rest of
// spawn never imports logrus directly, matching the way storage/disk wraps
// its logger dependency behind logging.Logger.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Level enumerates the leveled verbosity spawn understands.
type Level int

const (
	Error Level = iota
	Warn
	Info
	Debug
)

// Logger is the interface every spawn package logs through.
type Logger interface {
	Debug(fmt string, a ...interface{})
	Info(fmt string, a ...interface{})
	Warn(fmt string, a ...interface{})
	Error(fmt string, a ...interface{})
	GetLevel() Level
	SetLevel(Level)
	WithFields(fields map[string]interface{}) Logger
}

type logrusLogger struct {
	entry *logrus.Entry
	level Level
}

// New returns a Logger backed by logrus, writing to stderr so that stdout
// stays reserved for rendered SQL and machine-readable output.
func New() Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &logrusLogger{entry: logrus.NewEntry(l), level: Info}
}

func toLogrusLevel(l Level) logrus.Level {
	switch l {
	case Debug:
		return logrus.DebugLevel
	case Info:
		return logrus.InfoLevel
	case Warn:
		return logrus.WarnLevel
	default:
		return logrus.ErrorLevel
	}
}

func (l *logrusLogger) Debug(f string, a ...interface{}) {
	if l.level >= Debug {
		l.entry.Debugf(f, a...)
	}
}

func (l *logrusLogger) Info(f string, a ...interface{}) {
	if l.level >= Info {
		l.entry.Infof(f, a...)
	}
}

func (l *logrusLogger) Warn(f string, a ...interface{}) {
	if l.level >= Warn {
		l.entry.Warnf(f, a...)
	}
}

func (l *logrusLogger) Error(f string, a ...interface{}) {
	l.entry.Errorf(f, a...)
}

func (l *logrusLogger) GetLevel() Level { return l.level }

func (l *logrusLogger) SetLevel(level Level) {
	l.level = level
	l.entry.Logger.SetLevel(toLogrusLevel(level))
}

func (l *logrusLogger) WithFields(fields map[string]interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithFields(fields), level: l.level}
}
