package orchestrator

import (
	"errors"
	"net/http"
	"strconv"

	"buildhub/common/connectors/ciconn"
	"buildhub/common/connectors/orchestratorconn"
	"buildhub/health"
	"buildhub/lib/connector"
	"buildhub/queue"

	"github.com/gin-gonic/gin"
)

func participationParam(c *gin.Context) (uint64, bool) {
	raw := c.Query("participationId")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		connector.RespErr(c, http.StatusBadRequest, "invalid participationId %q", raw)
		return 0, false
	}
	return id, true
}

func (o *Orchestrator) handleBuild(c *gin.Context) {
	request := new(orchestratorconn.BuildRequest)
	if err := c.ShouldBindJSON(request); err != nil {
		connector.RespErr(c, http.StatusBadRequest, "can not parse build request: %v", err)
		return
	}

	job, err := o.Build(c, request)
	if err != nil {
		var triggerErr *ciconn.TriggerError
		switch {
		case errors.Is(err, queue.ErrDuplicateJob):
			connector.RespErr(c, http.StatusConflict, "participation %d already has an active build job", request.ParticipationID)
		case errors.As(err, &triggerErr):
			connector.RespErr(c, http.StatusBadGateway, "%v", triggerErr)
		default:
			connector.RespErr(c, http.StatusInternalServerError, "%v", err)
		}
		return
	}
	connector.RespOK(c, &orchestratorconn.BuildResponse{JobID: job.ID})
}

func (o *Orchestrator) handleStatus(c *gin.Context) {
	participationID, ok := participationParam(c)
	if !ok {
		return
	}

	status, err := queue.ResolveStatus(c, o.store, participationID)
	if err != nil {
		connector.RespErr(c, http.StatusInternalServerError, "%v", err)
		return
	}
	connector.RespOK(c, &orchestratorconn.StatusResponse{
		ParticipationID: participationID,
		Status:          status,
	})
}

func (o *Orchestrator) handleLogs(c *gin.Context) {
	participationID, ok := participationParam(c)
	if !ok {
		return
	}

	logs, err := o.backend.BuildLogs(c, participationID, c.Query("jobId"))
	if err != nil {
		connector.RespErr(c, http.StatusBadGateway, "%v", err)
		return
	}
	if logs == "" {
		connector.RespErr(c, http.StatusNotFound, "no build logs for participation %d", participationID)
		return
	}
	connector.RespOK(c, logs)
}

func (o *Orchestrator) handleHealth(c *gin.Context) {
	connector.RespOK(c, health.Aggregate(c, o.store, o.healthBackend))
}

func (o *Orchestrator) handleCancel(c *gin.Context) {
	participationID, ok := participationParam(c)
	if !ok {
		return
	}

	pending, err := o.store.QueuedJobFor(c, participationID)
	if err != nil {
		connector.RespErr(c, http.StatusInternalServerError, "%v", err)
		return
	}

	removed, err := o.store.Cancel(c, participationID)
	if err != nil {
		connector.RespErr(c, http.StatusInternalServerError, "%v", err)
		return
	}
	if removed && pending != nil {
		o.core.Metrics.QueueSize.Dec()
	}
	connector.RespOK(c, removed)
}
