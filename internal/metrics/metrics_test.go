package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	r := New()

	r.IngestRun("completed")
	r.IngestRun("completed")
	r.SnapshotCreated()
	r.RepositoryError("golang/go")
	r.Analysis("heuristic")
	r.Notification("console", true)
	r.Notification("webhook", false)
	r.Comparison("security")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.ingestRuns.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.snapshots))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.repoErrors.WithLabelValues("golang/go")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.analyses.WithLabelValues("heuristic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.notifications.WithLabelValues("console", "delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.notifications.WithLabelValues("webhook", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.comparisons.WithLabelValues("security")))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder

	assert.NotPanics(t, func() {
		r.IngestRun("completed")
		r.SnapshotCreated()
		r.RepositoryError("a/b")
		r.Analysis("llm")
		r.Notification("console", true)
		r.Comparison("executive")
	})
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.SnapshotCreated()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "release_radar_snapshots_created_total 1")
}
