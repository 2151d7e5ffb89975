package file

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/multicloud-dashboard/models"
)

func readLines(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		out = append(out, m)
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestWriter_AuditEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.log")
	w, err := NewWriter(Config{Path: path})
	require.NoError(t, err)

	event := models.NewAuditEvent(models.AuditActionLoginSuccess, "user-1").
		WithDetails(map[string]interface{}{"username": "alice"}).
		WithRequest("req-1", "10.0.0.1")
	require.NoError(t, w.Insert(context.Background(), event))
	require.NoError(t, w.Insert(context.Background(), models.NewAuditEvent(models.AuditActionSystemStartup, "")))
	require.NoError(t, w.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	assert.Equal(t, "login_success", lines[0]["action"])
	assert.Equal(t, "user-1", lines[0]["userId"])
	assert.Equal(t, "10.0.0.1", lines[0]["ip"])
	assert.Equal(t, "system", lines[1]["userId"])
	assert.Contains(t, lines[0], "timestamp")
}

func TestWriter_AccessLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	w, err := NewWriter(Config{Path: path})
	require.NoError(t, err)

	require.NoError(t, w.InsertAccess(context.Background(), &models.AccessLogEntry{
		Method:    "POST",
		URL:       "/api/dashboard",
		Status:    200,
		Duration:  "12ms",
		IPAddress: "127.0.0.1",
		UserAgent: "curl/8.0",
	}))
	require.NoError(t, w.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	assert.Equal(t, "12ms", lines[0]["duration"])
	assert.Equal(t, float64(200), lines[0]["status"])
	assert.Equal(t, "curl/8.0", lines[0]["userAgent"])
}

func TestWriter_ConcurrentAppendsStayLineDelimited(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	w, err := NewWriter(Config{Path: path})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.Insert(context.Background(), models.NewAuditEvent(models.AuditActionDashboardAccess, "u"))
		}()
	}
	wg.Wait()
	require.NoError(t, w.Close())

	assert.Len(t, readLines(t, path), 50)
}

func TestNewWriter_RequiresPath(t *testing.T) {
	_, err := NewWriter(Config{})
	assert.Error(t, err)
}
