package config

import (
	"time"

	"buildhub/lib/customfields"
)

type AgentConfig struct {
	// Name must be unique in the agent fleet. Empty means hostname:port.
	Name string `yaml:"Name,omitempty"`

	// Capacity is the number of builds the agent runs concurrently.
	Capacity int `yaml:"Capacity"`

	// Languages lists the programming languages this agent can build.
	// An empty list restricts the agent to jobs without a language requirement.
	Languages []string `yaml:"Languages"`

	HeartbeatInterval time.Duration `yaml:"HeartbeatInterval"`
	PollInterval      time.Duration `yaml:"PollInterval"`

	// WorkDir is where build checkouts and result files are placed.
	WorkDir string `yaml:"WorkDir"`

	// DefaultTimeLimit applies to jobs whose build configuration carries no limit.
	DefaultTimeLimit customfields.Time `yaml:"DefaultTimeLimit"`
}

func fillInAgentConfig(config *AgentConfig) {
	if config.Capacity == 0 {
		config.Capacity = 2
	}
	if config.HeartbeatInterval == 0 {
		config.HeartbeatInterval = 10 * time.Second
	}
	if config.PollInterval == 0 {
		config.PollInterval = time.Second
	}
	if config.WorkDir == "" {
		panic("No agent work dir specified")
	}
	if config.DefaultTimeLimit == 0 {
		config.DefaultTimeLimit.FromStr("300s")
	}
}
