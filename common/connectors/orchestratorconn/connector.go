package orchestratorconn

import (
	"context"

	"buildhub/common/config"
	"buildhub/common/connectors"
	"buildhub/lib/connector"
	"buildhub/queue"

	"github.com/go-resty/resty/v2"
)

type Connector struct {
	connection *connectors.ConnectorBase
}

func NewConnector(connection *config.Connection) *Connector {
	if connection == nil {
		return nil
	}
	return &Connector{connectors.NewConnectorBase(connection)}
}

func (c *Connector) RegisterAgent(ctx context.Context, info *queue.AgentInfo) error {
	r := c.connection.R()
	r.SetContext(ctx)
	r.SetBody(info)

	return connector.ReceiveEmpty(r, "/orchestrator/agents/register", resty.MethodPost)
}

// SendHeartbeat returns false when the orchestrator no longer knows the
// agent; the agent should register again.
func (c *Connector) SendHeartbeat(ctx context.Context, agentName string) (bool, error) {
	r := c.connection.R()
	r.SetContext(ctx)
	r.SetBody(map[string]string{"AgentName": agentName})

	known, err := connector.Receive[bool](r, "/orchestrator/agents/heartbeat", resty.MethodPost)
	if err != nil {
		return false, err
	}
	return known != nil && *known, nil
}

// PollJob asks for the next eligible job; nil means the queue has nothing
// for this agent right now.
func (c *Connector) PollJob(ctx context.Context, request *PollRequest) (*queue.BuildJob, error) {
	r := c.connection.R()
	r.SetContext(ctx)
	r.SetBody(request)

	return connector.Receive[queue.BuildJob](r, "/orchestrator/agents/poll", resty.MethodPost)
}

func (c *Connector) SendJobResult(ctx context.Context, result *AgentJobResult) error {
	r := c.connection.R()
	r.SetContext(ctx)
	r.SetBody(result)

	return connector.ReceiveEmpty(r, "/orchestrator/agents/result", resty.MethodPost)
}
