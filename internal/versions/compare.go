package versions

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// IsNewerVersion reports whether newVersion is strictly greater than oldVersion.
// Non-semver strings such as "dev" are compared lexicographically.
func IsNewerVersion(newVersion, oldVersion string) bool {
	newSemver, errNew := semver.NewVersion(newVersion)
	oldSemver, errOld := semver.NewVersion(oldVersion)

	if errNew != nil || errOld != nil {
		return newVersion > oldVersion
	}

	return newSemver.GreaterThan(oldSemver)
}

// Skew describes a version mismatch between the CLI and a running daemon.
// It returns an empty string when neither is newer.
func Skew(cli, daemon string) string {
	switch {
	case IsNewerVersion(daemon, cli):
		return fmt.Sprintf("daemon version %s is newer than this CLI (%s)", daemon, cli)
	case IsNewerVersion(cli, daemon):
		return fmt.Sprintf("this CLI (%s) is newer than the daemon (%s)", cli, daemon)
	default:
		return ""
	}
}
