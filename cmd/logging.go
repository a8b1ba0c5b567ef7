// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/camlink/internal/config"
)

// setupLogger builds the process logger from the log section
func setupLogger(c config.LogConfig) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if strings.EqualFold(c.Format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})
	}

	switch strings.ToLower(c.Output) {
	case "stdout":
		log.SetOutput(os.Stdout)
	case "file":
		file, err := os.OpenFile(c.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			log.SetOutput(file)
		} else {
			log.SetOutput(os.Stderr)
			log.Warnf("failed to open log file %s: %v, logging to stderr", c.FilePath, err)
		}
	default:
		log.SetOutput(os.Stderr)
	}

	return log
}

// quietForTUI stops terminal logging while a full screen UI owns the
// terminal. File logging is left alone.
func quietForTUI(log *logrus.Logger) {
	if !strings.EqualFold(cfg.Log.Output, "file") {
		log.SetOutput(io.Discard)
	}
}
