package config

import (
	"fmt"
	"os"

	"buildhub/lib/logger"

	"github.com/xorcare/pointer"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port int     `yaml:"Port"`
	Host *string `yaml:"Host,omitempty"` // leave empty for localhost

	Logger *logger.Config `yaml:"Logger,omitempty"`

	Orchestrator *OrchestratorConfig `yaml:"Orchestrator,omitempty"`
	Agent        *AgentConfig        `yaml:"Agent,omitempty"`

	Queue QueueConfig `yaml:"Queue"`
	DB    *DBConfig   `yaml:"DB,omitempty"`

	// if the instance runs the orchestrator itself, leave the connection empty
	OrchestratorConnection *Connection `yaml:"OrchestratorConnection,omitempty"`
}

type Connection struct {
	Address string `yaml:"Address"`
}

func ReadConfig(configPath string) *Config {
	content, err := os.ReadFile(configPath)
	if err != nil {
		panic(err)
	}

	config := new(Config)
	err = yaml.Unmarshal(content, config)
	if err != nil {
		panic(err)
	}

	fillInConfig(config)

	return config
}

func fillInConfig(config *Config) {
	if config.Host == nil {
		config.Host = pointer.String("localhost")
	}
	if config.Agent != nil && config.OrchestratorConnection == nil {
		config.OrchestratorConnection = &Connection{
			Address: fmt.Sprintf("http://%s:%d", *config.Host, config.Port),
		}
	}

	fillInQueueConfig(&config.Queue)
	if config.Orchestrator != nil {
		fillInOrchestratorConfig(config.Orchestrator)
	}
	if config.Agent != nil {
		fillInAgentConfig(config.Agent)
	}
}
