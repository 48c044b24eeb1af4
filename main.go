package main

import (
	"fmt"
	"os"

	"buildhub/agent"
	"buildhub/common"
	"buildhub/lib/logger"
	"buildhub/orchestrator"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: buildhub <config path>")
		os.Exit(2)
	}
	core := common.InitCore(os.Args[1])

	if core.Config.Orchestrator == nil && core.Config.Agent == nil {
		logger.Panic("Neither orchestrator nor agent is configured")
	}
	if core.Config.Orchestrator != nil {
		if err := orchestrator.SetupOrchestrator(core); err != nil {
			logger.Panic("Can not set up orchestrator: %v", err)
		}
	}
	if core.Config.Agent != nil {
		if err := agent.SetupAgent(core); err != nil {
			logger.Panic("Can not set up agent: %v", err)
		}
	}

	core.Run()
}
