package config

import (
	"testing"
	"time"

	"github.com/ManuelReschke/DocPay/internal/pkg/env"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withEnv(t *testing.T, values map[string]string) {
	t.Helper()
	old := env.Env
	env.Env = values
	t.Cleanup(func() { env.Env = old })
}

func TestLoad_Defaults(t *testing.T) {
	withEnv(t, map[string]string{
		"DB_NAME":                              "docpay",
		"PAYMONGO_WEBHOOK_SECRET":              " whsk_abc ",
		"PAYMONGO_SIGNATURE_TOLERANCE_SECONDS": "300",
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "0.0.0.0:4000", cfg.App.Addr())
	assert.Equal(t, "localhost:6379", cfg.Cache.Addr())
	assert.Equal(t, "whsk_abc", cfg.PayMongo.WebhookSecret)
	assert.Equal(t, 5*time.Minute, cfg.PayMongo.SignatureTolerance)
	assert.Equal(t, 15*time.Minute, cfg.Reconcile.Interval)
	assert.False(t, cfg.Admin.Enabled())
	assert.False(t, cfg.Archive.Enabled)
}

func TestLoad_SQLiteNeedsDSN(t *testing.T) {
	withEnv(t, map[string]string{"DB_DRIVER": "sqlite"})
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DSN")

	withEnv(t, map[string]string{"DB_DRIVER": "sqlite", "DB_DSN": "file:docpay.db"})
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "file:docpay.db", cfg.Database.DSN)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
		field  string
	}{
		{name: "unknown driver", values: map[string]string{"DB_DRIVER": "oracle", "DB_NAME": "x"}, field: "Driver"},
		{name: "archive without bucket", values: map[string]string{"DB_NAME": "x", "S3_ARCHIVE_ENABLED": "true", "S3_REGION": "ap-southeast-1"}, field: "Bucket"},
		{name: "bad webhook url", values: map[string]string{"DB_NAME": "x", "PAYMONGO_WEBHOOK_URL": "not a url"}, field: "WebhookURL"},
		{name: "zero workers", values: map[string]string{"DB_NAME": "x", "JOBQUEUE_WORKERS": "0"}, field: "Workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withEnv(t, tt.values)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}
