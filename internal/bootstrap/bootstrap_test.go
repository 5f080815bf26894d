package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/THIS-Institute/thiscovery-surveys/internal/config"
)

const testConfig = `
store:
  backend: memory
qualtrics:
  accounts:
    - name: cambridge
      base_url: https://cambridge.eu.qualtrics.com/API/v3
      api_token: token
      default_contact_list_id: ML_1
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestNew_MemoryBackend(t *testing.T) {
	app, err := New(context.Background(), writeConfig(t, testConfig), false)
	require.NoError(t, err)
	t.Cleanup(app.Close)

	assert.Equal(t, config.BackendMemory, app.Config.Store.Backend)
	assert.Nil(t, app.Redis)
	assert.Nil(t, app.Publisher)
	assert.Nil(t, app.Store.Ping)
	assert.Contains(t, app.Clients, "cambridge")
	assert.Equal(t, "ML_1", app.Accounts.ContactList("cambridge", ""))
	assert.Equal(t, 50, app.Replenisher.Buffer())
}

func TestNew_DebugOverridesLogging(t *testing.T) {
	app, err := New(context.Background(), writeConfig(t, testConfig), true)
	require.NoError(t, err)
	t.Cleanup(app.Close)

	assert.True(t, app.Config.Service.Debug)
	assert.Equal(t, "debug", app.Config.Logging.Level)
}

func TestRunWorker_RequiresRedis(t *testing.T) {
	app, err := New(context.Background(), writeConfig(t, testConfig), false)
	require.NoError(t, err)
	t.Cleanup(app.Close)

	require.ErrorIs(t, RunWorker(context.Background(), app), ErrRedisRequired)
}

func TestSetupHTTPServer_Routes(t *testing.T) {
	app, err := New(context.Background(), writeConfig(t, testConfig), false)
	require.NoError(t, err)
	t.Cleanup(app.Close)

	router := SetupHTTPServer(app).Router()

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantBody string
	}{
		{name: "health", path: "/health", wantCode: http.StatusOK, wantBody: `"status":"healthy"`},
		{name: "metrics", path: "/metrics", wantCode: http.StatusOK, wantBody: "go_goroutines"},
		{
			name:     "invalid allocation",
			path:     "/v1/personal-link?account=cambridge&survey_id=SV_1",
			wantCode: http.StatusBadRequest,
			wantBody: "participant_id",
		},
		{name: "admin disabled without secret", path: "/v1/admin/pools/cambridge/SV_1", wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}
