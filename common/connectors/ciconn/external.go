package ciconn

import (
	"context"
	"strconv"

	"buildhub/common/config"
	"buildhub/common/connectors"
	"buildhub/lib/connector"
	"buildhub/queue"

	"github.com/go-resty/resty/v2"
)

// ExternalBackend delegates builds to a remote CI microservice over REST.
type ExternalBackend struct {
	connection *connectors.ConnectorBase

	languages []string
	templates map[string]string
}

func NewExternalBackend(connection *config.Connection) *ExternalBackend {
	return &ExternalBackend{
		connection: connectors.NewConnectorBase(connection),
		templates:  make(map[string]string),
	}
}

func (b *ExternalBackend) TriggerBuild(ctx context.Context, request *TriggerRequest) error {
	r := b.connection.R()
	r.SetContext(ctx)
	r.SetBody(request)

	if err := connector.ReceiveEmpty(r, "/ci/build", resty.MethodPost); err != nil {
		return &TriggerError{Backend: "external", Err: err}
	}
	return nil
}

func (b *ExternalBackend) BuildStatus(ctx context.Context, participationID uint64) (*queue.BuildStatus, error) {
	r := b.connection.R()
	r.SetContext(ctx)
	r.SetQueryParam("participationId", strconv.FormatUint(participationID, 10))

	return connector.Receive[queue.BuildStatus](r, "/ci/status", resty.MethodGet)
}

func (b *ExternalBackend) BuildLogs(ctx context.Context, participationID uint64, jobID string) (string, error) {
	r := b.connection.R()
	r.SetContext(ctx)
	r.SetQueryParam("participationId", strconv.FormatUint(participationID, 10))
	if jobID != "" {
		r.SetQueryParam("jobId", jobID)
	}

	logs, err := connector.Receive[string](r, "/ci/logs", resty.MethodGet)
	if err != nil {
		return "", err
	}
	if logs == nil {
		return "", nil
	}
	return *logs, nil
}

func (b *ExternalBackend) Health(ctx context.Context) *Health {
	r := b.connection.R()
	r.SetContext(ctx)

	health, err := connector.Receive[Health](r, "/ci/health", resty.MethodGet)
	if err != nil {
		return &Health{
			Up: false,
			Details: map[string]any{
				"backend": "external",
				"reason":  err.Error(),
			},
		}
	}
	return health
}

// SupportedLanguages reports the language set fetched at startup via
// LoadCapabilities; empty until then.
func (b *ExternalBackend) SupportedLanguages() []string {
	return b.languages
}

func (b *ExternalBackend) DefaultTemplate(language string, exerciseType string) (string, bool) {
	template, ok := b.templates[language+"/"+exerciseType]
	return template, ok
}

type capabilitiesResponse struct {
	Languages []string          `json:"Languages"`
	Templates map[string]string `json:"Templates"`
}

// LoadCapabilities resolves the backend's static capability set once at
// startup, instead of re-querying it on every call.
func (b *ExternalBackend) LoadCapabilities(ctx context.Context) error {
	r := b.connection.R()
	r.SetContext(ctx)

	capabilities, err := connector.Receive[capabilitiesResponse](r, "/ci/capabilities", resty.MethodGet)
	if err != nil {
		return err
	}
	b.languages = capabilities.Languages
	if capabilities.Templates != nil {
		b.templates = capabilities.Templates
	}
	return nil
}
