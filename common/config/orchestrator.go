package config

import "time"

type OrchestratorConfig struct {
	// AgentTimeout is the window after the last heartbeat in which an agent is still considered alive.
	AgentTimeout time.Duration `yaml:"AgentTimeout"`
	// AgentRecoveryInterval defines how often stale agents are collected and their jobs requeued.
	AgentRecoveryInterval time.Duration `yaml:"AgentRecoveryInterval"`

	// CIMode selects the build backend: "queued" for the shared agent pool,
	// "external" for a remote CI service. Chosen once at startup.
	CIMode string `yaml:"CIMode"`
	// CIConnection must be set when CIMode is "external".
	CIConnection *Connection `yaml:"CIConnection,omitempty"`

	// LogHistorySize bounds the total size of build logs kept in memory for the logs endpoint.
	LogHistorySize uint64 `yaml:"LogHistorySize"`
}

const (
	CIModeQueued   = "queued"
	CIModeExternal = "external"
)

func fillInOrchestratorConfig(config *OrchestratorConfig) {
	if config.AgentTimeout == 0 {
		config.AgentTimeout = 30 * time.Second
	}
	if config.AgentRecoveryInterval == 0 {
		config.AgentRecoveryInterval = 10 * time.Second
	}
	if config.CIMode == "" {
		config.CIMode = CIModeQueued
	}
	if config.CIMode == CIModeExternal && config.CIConnection == nil {
		panic("external CI mode requires CIConnection")
	}
	if config.LogHistorySize == 0 {
		config.LogHistorySize = 64 * 1024 * 1024
	}
}
