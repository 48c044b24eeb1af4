package orchestrator

import (
	"errors"
	"net/http"

	"buildhub/common/connectors/orchestratorconn"
	"buildhub/converter"
	"buildhub/lib/connector"
	"buildhub/lib/logger"
	"buildhub/queue"

	"github.com/gin-gonic/gin"
)

func (o *Orchestrator) handleAgentRegister(c *gin.Context) {
	info := new(queue.AgentInfo)
	if err := c.ShouldBindJSON(info); err != nil {
		connector.RespErr(c, http.StatusBadRequest, "can not parse agent info: %v", err)
		return
	}
	if info.Name == "" {
		connector.RespErr(c, http.StatusBadRequest, "agent name is required")
		return
	}

	if err := o.store.RegisterAgent(c, info); err != nil {
		connector.RespErr(c, http.StatusInternalServerError, "%v", err)
		return
	}
	logger.Info("Agent %s registered with capacity %d", info.Name, info.Capacity)
	connector.RespOK(c, nil)
}

func (o *Orchestrator) handleAgentHeartbeat(c *gin.Context) {
	request := new(struct {
		AgentName string `json:"AgentName" binding:"required"`
	})
	if err := c.ShouldBindJSON(request); err != nil {
		connector.RespErr(c, http.StatusBadRequest, "can not parse heartbeat: %v", err)
		return
	}

	known, err := o.store.Heartbeat(c, request.AgentName)
	if err != nil {
		connector.RespErr(c, http.StatusInternalServerError, "%v", err)
		return
	}
	connector.RespOK(c, known)
}

func (o *Orchestrator) handleAgentPoll(c *gin.Context) {
	request := new(orchestratorconn.PollRequest)
	if err := c.ShouldBindJSON(request); err != nil {
		connector.RespErr(c, http.StatusBadRequest, "can not parse poll request: %v", err)
		return
	}

	job, err := o.store.DequeueNext(c, request.AgentName, request.Languages)
	if err != nil {
		connector.RespErr(c, http.StatusInternalServerError, "%v", err)
		return
	}
	if job != nil {
		o.core.Metrics.QueueSize.Dec()
		logger.Debug("Handed job %s to agent %s", job.ID, request.AgentName)
	}
	connector.RespOK(c, job)
}

func (o *Orchestrator) handleAgentResult(c *gin.Context) {
	result := new(orchestratorconn.AgentJobResult)
	if err := c.ShouldBindJSON(result); err != nil {
		connector.RespErr(c, http.StatusBadRequest, "can not parse job result: %v", err)
		return
	}

	if err := o.HandleJobResult(c, result); err != nil {
		if errors.Is(err, converter.ErrMalformedNotification) {
			connector.RespErr(c, http.StatusUnprocessableEntity, "%v", err)
			return
		}
		connector.RespErr(c, http.StatusInternalServerError, "%v", err)
		return
	}
	connector.RespOK(c, nil)
}
