// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"

	"github.com/natefinch/lumberjack"
	log "github.com/sirupsen/logrus"
)

// Config selects the log level and an optional rotating log file.
type Config struct {
	Verbose bool   `yaml:"verbose"`
	Logfile string `yaml:"logfile"`
	MaxSize int    `yaml:"maxSize"` // megabytes
	MaxAge  int    `yaml:"maxAge"`  // days
}

// SetLogger applies c to the standard logrus logger. The returned closer releases the log
// file, if any.
func (c *Config) SetLogger() io.Closer {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
	if c.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	if c.Logfile == "" {
		log.SetOutput(os.Stderr)
		return nopCloser{}
	}

	l := &lumberjack.Logger{
		Filename: c.Logfile,
		MaxSize:  c.MaxSize,
		MaxAge:   c.MaxAge,
	}
	log.SetOutput(l)
	log.WithField("logfile", c.Logfile).Debug("Sending log messages to file")
	return l
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
