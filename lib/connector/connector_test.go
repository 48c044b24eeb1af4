package connector

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *resty.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return resty.New().SetBaseURL(server.URL)
}

func TestReceiveUnwrapsEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true, "data": {"Name": "a"}}`))
	})

	type payload struct{ Name string }
	data, err := Receive[payload](client.R(), "/x", resty.MethodGet)
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, "a", data.Name)
}

func TestReceiveEnvelopeError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"ok": false, "error": "already queued"}`))
	})

	_, err := Receive[string](client.R(), "/x", resty.MethodPost)
	var connErr *Error
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, http.StatusConflict, connErr.Code)
	assert.Equal(t, "already queued", connErr.Message)
}

func TestReceiveNonEnvelopeErrorBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream unavailable"))
	})

	_, err := Receive[string](client.R(), "/x", resty.MethodGet)
	var connErr *Error
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, http.StatusBadGateway, connErr.Code)
	assert.Equal(t, "upstream unavailable", connErr.Message)
}

func TestReceiveNonEnvelopeJSONErrorField(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "no such build"}`))
	})

	_, err := Receive[string](client.R(), "/x", resty.MethodGet)
	var connErr *Error
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "no such build", connErr.Message)
}
