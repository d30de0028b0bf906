package api

import "github.com/GlobalTax/Crmcapittal-sub010/internal/versions"

// HealthResponse is served by /health while the process is up
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadinessResponse is served by /readiness. Starting lists the sessions
// that have not completed their first scheduling step.
type ReadinessResponse struct {
	Status   string   `json:"status"`
	Sessions int      `json:"sessions"`
	Starting []string `json:"starting,omitempty"`
}

// VersionResponse is served by /version
type VersionResponse = versions.VersionInfo
