// Package logger provides the structured logger shared by every storefront
// component. It is a thin layer over logrus that stamps each entry with the
// name of the component that produced it.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// LoggingConfig controls logger construction.
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Logger wraps logrus so callers can use WithField/WithError chains directly.
type Logger struct {
	*logrus.Logger
	component string
}

// New builds a logger from configuration. Unknown levels fall back to info,
// unknown formats to text.
func New(cfg LoggingConfig) *Logger {
	base := logrus.New()

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	default:
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Output)) {
	case "stderr":
		base.SetOutput(os.Stderr)
	case "discard":
		base.SetOutput(io.Discard)
	default:
		base.SetOutput(os.Stdout)
	}

	return &Logger{Logger: base}
}

// NewDefault returns an info-level text logger tagged with component.
func NewDefault(component string) *Logger {
	l := New(LoggingConfig{Level: "info", Format: "text"})
	return l.Named(component)
}

// Named returns a logger sharing output and level with l whose entries carry
// the given component name.
func (l *Logger) Named(component string) *Logger {
	child := logrus.New()
	child.SetOutput(l.Out)
	child.SetFormatter(l.Formatter)
	child.SetLevel(l.GetLevel())
	for level, hooks := range l.Hooks {
		for _, h := range hooks {
			if _, ok := h.(componentHook); ok {
				continue
			}
			child.Hooks[level] = append(child.Hooks[level], h)
		}
	}
	if component != "" {
		child.AddHook(componentHook{name: component})
	}
	return &Logger{Logger: child, component: component}
}

// Component reports the component name attached to l.
func (l *Logger) Component() string {
	return l.component
}

type componentHook struct {
	name string
}

func (h componentHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h componentHook) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["component"]; !ok {
		entry.Data["component"] = h.name
	}
	return nil
}
