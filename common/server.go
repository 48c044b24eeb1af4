package common

import (
	"context"
	"net/http"
	"strconv"

	"buildhub/lib/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (core *Core) recoverRequest(c *gin.Context, err any) {
	if err != nil {
		core.panicsLock.Lock()
		core.panics = append(core.panics, err)
		core.panicsLock.Unlock()

		core.stopFunc()
		c.AbortWithStatus(http.StatusInternalServerError)
	}
}

func (core *Core) InitServer() {
	gin.SetMode(gin.ReleaseMode)
	core.Router = gin.New()

	if logger.GetLevel() <= logger.LogLevelTrace {
		core.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
			Output: logger.CreateWriter(logger.LogLevelTrace, "Handler log:"),
		}))
	}
	core.Router.Use(gin.CustomRecoveryWithWriter(
		logger.CreateWriter(logger.LogLevelError, "Panic in handler:"),
		core.recoverRequest,
	))

	core.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (core *Core) runServer() {
	addr := ":" + strconv.Itoa(core.Config.Port)
	if core.Config.Host != nil {
		addr = *core.Config.Host + addr
	}
	logger.Info("Starting server at " + addr)
	server := http.Server{
		Addr:    addr,
		Handler: core.Router,
	}
	go func() {
		<-core.StopCtx.Done()
		logger.Info("Shutting down server")
		server.Shutdown(context.Background())
	}()
	server.ListenAndServe()
}
