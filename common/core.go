package common

import (
	"context"
	"os/signal"
	"sync"
	"syscall"

	"buildhub/common/config"
	"buildhub/common/connectors/orchestratorconn"
	"buildhub/common/db"
	"buildhub/common/metrics"
	"buildhub/lib/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// Core carries the shared pieces of one application instance. An instance
// may run the orchestrator, an agent, or both, depending on configuration.
type Core struct {
	Config  *config.Config
	Router  *gin.Engine
	DB      *gorm.DB
	Metrics *metrics.Collector

	OrchestratorConn *orchestratorconn.Connector

	processes []func()
	defers    []func()

	StopCtx  context.Context
	stopFunc context.CancelFunc
	stopWG   sync.WaitGroup

	panicsLock sync.Mutex
	panics     []any
}

func InitCore(configPath string) *Core {
	core := &Core{
		Config: config.ReadConfig(configPath),
	}
	logger.InitLogger(core.Config.Logger)

	core.InitServer()
	core.Metrics = metrics.NewCollector(prometheus.DefaultRegisterer)

	if core.Config.DB != nil {
		var err error
		core.DB, err = db.NewDB(core.Config.DB)
		if err != nil {
			logger.Panic("Can not set up db connection, error: %s", err.Error())
		}
	}

	core.OrchestratorConn = orchestratorconn.NewConnector(core.Config.OrchestratorConnection)

	return core
}

func (core *Core) AddProcess(f func()) {
	core.processes = append(core.processes, f)
}

func (core *Core) AddDefer(f func()) {
	core.defers = append(core.defers, f)
}

func (core *Core) Run() {
	var ctx context.Context
	var cancel context.CancelFunc
	ctx, core.stopFunc = context.WithCancel(context.Background())
	core.StopCtx, cancel = signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	for _, process := range core.processes {
		core.Go(process)
	}

	core.runServer()

	core.stopWG.Wait()

	for _, d := range core.defers {
		d()
	}

	if len(core.panics) > 0 {
		logger.Panic("Core stopped after panic: %v", core.panics[0])
	}
}

func (core *Core) Go(f func()) {
	core.stopWG.Add(1)
	go core.runProcess(f)
}

func (core *Core) runProcess(f func()) {
	defer func() {
		v := recover()
		if v != nil {
			logger.Error("One process got panic, shutting down all processes gracefully")
			core.panicsLock.Lock()
			core.panics = append(core.panics, v)
			core.panicsLock.Unlock()
			core.stopFunc()
		}
		core.stopWG.Done()
	}()

	f()
}
