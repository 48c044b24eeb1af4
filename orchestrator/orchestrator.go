package orchestrator

import (
	"context"
	"errors"

	"buildhub/common"
	"buildhub/common/config"
	"buildhub/common/connectors/ciconn"
	"buildhub/lib/logger"
	"buildhub/queue"
)

// Orchestrator accepts build requests, keeps the shared queue state and
// converts agent results into graded feedback.
type Orchestrator struct {
	core    *common.Core
	store   queue.Store
	backend ciconn.Backend

	// healthBackend is set only when the backend is an external service; the
	// queued backend's health is already covered by the store aggregation.
	healthBackend ciconn.Backend

	logs       *LogHistory
	catalogues CatalogueSource
}

func SetupOrchestrator(core *common.Core) error {
	if core.Config.Orchestrator == nil {
		return errors.New("orchestrator is not configured")
	}
	cfg := core.Config.Orchestrator

	store, err := queue.NewStore(&core.Config.Queue)
	if err != nil {
		return err
	}

	o := &Orchestrator{
		core:  core,
		store: store,
		logs:  NewLogHistory(cfg.LogHistorySize),
	}

	if core.DB != nil {
		o.catalogues = &dbCatalogueSource{db: core.DB}
	} else {
		o.catalogues = nullCatalogueSource{}
	}

	switch cfg.CIMode {
	case config.CIModeQueued:
		o.backend = &queuedBackend{o: o}
	case config.CIModeExternal:
		external := ciconn.NewExternalBackend(cfg.CIConnection)
		if err := external.LoadCapabilities(context.Background()); err != nil {
			logger.Warn("could not load external CI capabilities: %v", err)
		}
		o.backend = external
		o.healthBackend = external
	default:
		return errors.New("unknown CI mode: " + cfg.CIMode)
	}

	r := core.Router.Group("/orchestrator")
	r.POST("/build", o.handleBuild)
	r.GET("/status", o.handleStatus)
	r.GET("/logs", o.handleLogs)
	r.GET("/health", o.handleHealth)
	r.POST("/cancel", o.handleCancel)

	r.POST("/agents/register", o.handleAgentRegister)
	r.POST("/agents/heartbeat", o.handleAgentHeartbeat)
	r.POST("/agents/poll", o.handleAgentPoll)
	r.POST("/agents/result", o.handleAgentResult)

	core.AddProcess(o.recoveryLoop)

	logger.Info("Configured orchestrator with %s CI backend", cfg.CIMode)
	return nil
}
