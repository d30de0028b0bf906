package config

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

const appDir = "syncd"

// DefaultConfigPath is the config file used when no path is given
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, appDir, "config.yaml")
}

// DefaultStateDir is the status directory for the file state store
func DefaultStateDir() string {
	return filepath.Join(xdg.StateHome, appDir, "status")
}

// DefaultStateDBPath is the database path for the sqlite state store
func DefaultStateDBPath() string {
	return filepath.Join(xdg.StateHome, appDir, "status.db")
}

// DefaultTokenPath is the token file for the file token store
func DefaultTokenPath() string {
	return filepath.Join(xdg.DataHome, appDir, "token.json")
}
