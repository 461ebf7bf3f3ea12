package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/DocPay/internal/pkg/paymongo"
)

func withGateway(t *testing.T, handler http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	old := newGatewayClient
	newGatewayClient = func() (*paymongo.Client, error) {
		return paymongo.NewClient("sk_test_cli", srv.URL), nil
	}
	t.Cleanup(func() { newGatewayClient = old })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestWebhooksList(t *testing.T) {
	withGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/webhooks", r.URL.Path)
		_, _ = io.WriteString(w, `{"data":[{"id":"hook_1","attributes":{"url":"https://docs.example.gov/api/webhooks/paymongo","status":"enabled","events":["payment.paid","payment.failed"]}}]}`)
	})

	out, err := execute(t, "webhooks", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "hook_1")
	assert.Contains(t, out, "payment.paid,payment.failed")
}

func TestWebhooksCreate_PrintsSecret(t *testing.T) {
	withGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		_, _ = io.WriteString(w, `{"data":{"id":"hook_2","attributes":{"url":"https://x/hook","status":"enabled","secret_key":"whsk_once"}}}`)
	})

	out, err := execute(t, "webhooks", "create", "--url", "https://x/hook", "--events", "payment.paid")
	require.NoError(t, err)
	assert.Contains(t, out, "hook_2")
	assert.Contains(t, out, "whsk_once")
}

func TestWebhooksDisable(t *testing.T) {
	withGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/webhooks/hook_3/disable", r.URL.Path)
		_, _ = io.WriteString(w, `{"data":{"id":"hook_3","attributes":{"status":"disabled"}}}`)
	})

	out, err := execute(t, "webhooks", "disable", "hook_3")
	require.NoError(t, err)
	assert.Contains(t, out, "disabled")
}

func TestWebhooksDelete(t *testing.T) {
	withGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{}`)
	})

	out, err := execute(t, "webhooks", "delete", "hook_4")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted webhook hook_4")
}

func TestWebhooksGet_RequiresID(t *testing.T) {
	_, err := execute(t, "webhooks", "get")
	assert.Error(t, err)
}
