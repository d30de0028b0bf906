// Package main is the entry point for the syncd daemon and CLI.
package main

import (
	"log/slog"
	"os"

	"github.com/GlobalTax/Crmcapittal-sub010/cmd/syncd/app"
)

func main() {
	// logs go to stderr, stdout carries command output such as version --format json
	logger, warn := newLogger(os.Stderr, os.Getenv)
	slog.SetDefault(logger)
	if warn != "" {
		logger.Warn(warn)
	}

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
