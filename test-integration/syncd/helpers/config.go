package helpers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/onsi/gomega"
)

// SessionSpec describes one session of a generated configuration
type SessionSpec struct {
	ID           string
	URL          string
	BaseInterval string
	MaxInterval  string
	Multiplier   string
	PauseMode    string
	FetchOnStart *bool
}

// ConfigSpec describes a generated configuration file
type ConfigSpec struct {
	StateType   string
	StatePath   string
	StaticToken string
	Sessions    []SessionSpec
}

// WriteConfigYAML writes cs as syncd.yaml in dir and returns its path.
// The in-call retry loop is limited to one attempt so that every poll maps
// to exactly one upstream request.
func WriteConfigYAML(dir string, cs ConfigSpec) string {
	var b strings.Builder

	b.WriteString("executor:\n  maxAttempts: 1\n  baseDelay: 10ms\n  maxDelay: 10ms\n")

	stateType := cs.StateType
	if stateType == "" {
		stateType = "file"
	}
	fmt.Fprintf(&b, "state:\n  type: %s\n  path: %s\n", stateType, cs.StatePath)

	if cs.StaticToken != "" {
		fmt.Fprintf(&b, "credentials:\n  type: static\n  token: %s\n", cs.StaticToken)
	}

	b.WriteString("sessions:\n")
	for _, s := range cs.Sessions {
		fmt.Fprintf(&b, "  - id: %s\n    url: %s\n    itemsPath: data\n", s.ID, s.URL)
		writeOptional(&b, "baseInterval", s.BaseInterval)
		writeOptional(&b, "maxInterval", s.MaxInterval)
		writeOptional(&b, "backoffMultiplier", s.Multiplier)
		writeOptional(&b, "pauseMode", s.PauseMode)
		if s.FetchOnStart != nil {
			fmt.Fprintf(&b, "    fetchOnStart: %t\n", *s.FetchOnStart)
		}
	}

	path := filepath.Join(dir, "syncd.yaml")
	gomega.Expect(os.WriteFile(path, []byte(b.String()), 0o600)).To(gomega.Succeed())
	return path
}

func writeOptional(b *strings.Builder, key, value string) {
	if value != "" {
		fmt.Fprintf(b, "    %s: %s\n", key, value)
	}
}
