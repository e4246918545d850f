package main

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type logConfig struct {
	level   string
	file    string
	maxSize int
	maxAge  int
	json    bool
}

// setupLogger configures the standard logrus logger. When a file is given the
// output also goes to a rotated log file, which the returned closer closes.
func setupLogger(c logConfig) (io.Closer, error) {
	lvl, err := log.ParseLevel(c.level)
	if err != nil {
		return nil, err
	}
	log.SetLevel(lvl)

	if c.json {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	if c.file == "" {
		log.SetOutput(os.Stderr)
		return io.NopCloser(nil), nil
	}

	w := &lumberjack.Logger{
		Filename: c.file,
		MaxSize:  c.maxSize, // MB
		MaxAge:   c.maxAge,
		Compress: true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, w))
	return w, nil
}
