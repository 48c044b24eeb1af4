package connectors

import (
	"buildhub/common/config"

	"github.com/go-resty/resty/v2"
)

type ConnectorBase struct {
	Connection *config.Connection
	client     *resty.Client
}

func NewConnectorBase(connection *config.Connection) *ConnectorBase {
	c := &ConnectorBase{
		Connection: connection,
		client:     resty.New(),
	}
	c.client.SetBaseURL(connection.Address)
	return c
}

func (c *ConnectorBase) R() *resty.Request {
	return c.client.R()
}
