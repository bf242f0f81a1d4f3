package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"lease_engine/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct{}

func (m *mockLogger) Debug(msg string, f ...interface{})               { fmt.Printf("DEBUG: %s %v\n", msg, f) }
func (m *mockLogger) Info(msg string, f ...interface{})                { fmt.Printf("INFO: %s %v\n", msg, f) }
func (m *mockLogger) Warn(msg string, f ...interface{})                { fmt.Printf("WARN: %s %v\n", msg, f) }
func (m *mockLogger) Error(msg string, f ...interface{})               { fmt.Printf("ERROR: %s %v\n", msg, f) }
func (m *mockLogger) Fatal(msg string, f ...interface{})               { fmt.Printf("FATAL: %s %v\n", msg, f) }
func (m *mockLogger) WithField(k string, v interface{}) core.ILogger   { return m }
func (m *mockLogger) WithFields(f map[string]interface{}) core.ILogger { return m }

func TestServer_ExposesMetrics(t *testing.T) {
	ts := httptest.NewServer(NewServer(0, &mockLogger{}).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/other")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
