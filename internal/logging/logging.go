// Package logging builds the service's logrus logger and bridges its entries into OpenTelemetry logs.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options configures New.
type Options struct {
	// Level is a logrus level name (debug, info, warn, error).
	Level string
	// Format is "json" or "text".
	Format string
	// Service is attached to every entry as the "service" field.
	Service string
	// Output defaults to stdout.
	Output io.Writer
}

// New returns an entry whose logger is configured from opts and which carries the service field.
// Components take it as a logrus.FieldLogger.
func New(opts Options) (*logrus.Entry, error) {
	level, err := logrus.ParseLevel(strings.TrimSpace(opts.Level))
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	l := logrus.New()
	l.SetLevel(level)
	if opts.Output != nil {
		l.SetOutput(opts.Output)
	} else {
		l.SetOutput(os.Stdout)
	}
	switch strings.ToLower(opts.Format) {
	case "", "json":
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	case "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("logging: unknown format %q", opts.Format)
	}
	entry := logrus.NewEntry(l)
	if opts.Service != "" {
		entry = entry.WithField("service", opts.Service)
	}
	return entry, nil
}
