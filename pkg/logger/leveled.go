package logger

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Leveled adapts a logrus entry to the key/value leveled logger interface used by retryablehttp
type Leveled struct {
	inner *logrus.Entry
}

// NewLeveled wraps entry
func NewLeveled(entry *logrus.Entry) Leveled {
	return Leveled{inner: entry}
}

func fields(keysAndValues []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		f[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return f
}

// Error is logged at WARN level, because of retries
func (l Leveled) Error(msg string, keysAndValues ...interface{}) {
	l.inner.WithFields(fields(keysAndValues)).Warn(msg)
}

func (l Leveled) Warn(msg string, keysAndValues ...interface{}) {
	l.inner.WithFields(fields(keysAndValues)).Warn(msg)
}

func (l Leveled) Info(msg string, keysAndValues ...interface{}) {
	l.inner.WithFields(fields(keysAndValues)).Info(msg)
}

func (l Leveled) Debug(msg string, keysAndValues ...interface{}) {
	l.inner.WithFields(fields(keysAndValues)).Debug(msg)
}
