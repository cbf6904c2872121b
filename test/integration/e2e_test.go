// End-to-end tests: dataset ingestion, worker pool, result store and
// HTTP API assembled the same way the run command assembles them.
package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/le-stats-sportif/webserver/internal/ingest"
	"github.com/le-stats-sportif/webserver/internal/pool"
	"github.com/le-stats-sportif/webserver/internal/results"
	"github.com/le-stats-sportif/webserver/internal/server"
	"github.com/le-stats-sportif/webserver/internal/stats"
	"github.com/le-stats-sportif/webserver/pkg/types"
)

const (
	obesityQ  = "Percent of adults aged 18 years and older who have obesity"
	strengthQ = "Percent of adults who engage in muscle-strengthening activities on 2 or more days a week"
)

// csvRow renders one 32-column dataset row with only the consumed
// columns populated.
func csvRow(state, question, value, category, segment string) string {
	cols := make([]string, 32)
	cols[4] = state
	cols[8] = question
	cols[11] = value
	cols[30] = category
	cols[31] = segment
	return strings.Join(cols, ",")
}

// writeDataset produces a small but realistic CSV file. Obesity means:
// Utah 20, Iowa 25, Ohio 30, Texas 35. Strength means: Ohio 40, Utah 50.
func writeDataset(t *testing.T) string {
	t.Helper()

	header := make([]string, 32)
	header[4] = "LocationDesc"
	header[8] = "Question"
	header[11] = "Data_Value"
	header[30] = "StratificationCategory1"
	header[31] = "Stratification1"

	lines := []string{
		strings.Join(header, ","),
		csvRow("Ohio", obesityQ, "28", "Total", "Total"),
		csvRow("Ohio", obesityQ, "32", "Total", "Total"),
		csvRow("Utah", obesityQ, "20", "Total", "Total"),
		csvRow("Iowa", obesityQ, "25", "Total", "Total"),
		csvRow("Texas", obesityQ, "35", "Total", "Total"),
		csvRow("Nevada", obesityQ, "", "Total", "Total"), // missing value
		csvRow("Ohio", strengthQ, "40", "Gender", "Male"),
		csvRow("Utah", strengthQ, "50", "Gender", "Female"),
	}

	path := filepath.Join(t.TempDir(), "dataset.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
	return path
}

func startServer(t *testing.T) (*httptest.Server, *pool.Pool) {
	t.Helper()

	dataset, err := ingest.Load(writeDataset(t))
	require.NoError(t, err)
	require.Len(t, dataset.Entries, 8)
	require.Zero(t, dataset.Skipped)

	store, err := results.New(filepath.Join(t.TempDir(), "results"))
	require.NoError(t, err)

	p := pool.New(pool.Config{
		Workers:     2,
		TakeTimeout: 20 * time.Millisecond,
		Store:       store,
		Dispatcher:  stats.NewDispatcher(dataset),
	})
	require.NoError(t, p.Start())
	t.Cleanup(func() { p.Shutdown() })

	ts := httptest.NewServer(server.New(p, store, nil).Handler())
	t.Cleanup(ts.Close)
	return ts, p
}

func submit(t *testing.T, ts *httptest.Server, endpoint, body string) int {
	t.Helper()
	resp, err := http.Post(ts.URL+endpoint, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	raw := readAll(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode, "%s: %s", endpoint, raw)

	var parsed struct {
		JobID int `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &parsed))
	return parsed.JobID
}

func pollDone(t *testing.T, ts *httptest.Server, id int) string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(fmt.Sprintf("%s/api/get_results/%d", ts.URL, id))
		require.NoError(t, err)
		raw := readAll(t, resp)
		require.Equal(t, http.StatusOK, resp.StatusCode, raw)

		var doc types.ResultDoc
		require.NoError(t, json.Unmarshal([]byte(raw), &doc))
		if doc.Status == types.StateDone {
			return string(doc.Data)
		}
		require.Equal(t, types.StateRunning, doc.Status)
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %d never reached done", id)
	return ""
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(raw)
}

func TestSubmitPollLifecycle(t *testing.T) {
	ts, _ := startServer(t)

	id := submit(t, ts, "/api/states_mean", fmt.Sprintf(`{"question":%q}`, obesityQ))
	assert.Equal(t, 1, id)

	data := pollDone(t, ts, id)
	assert.Equal(t, `{"Utah":20,"Iowa":25,"Ohio":30,"Texas":35}`, data)
}

func TestComputationsOverTheWire(t *testing.T) {
	ts, _ := startServer(t)

	cases := []struct {
		endpoint string
		body     string
		want     string
	}{
		{"/api/state_mean", fmt.Sprintf(`{"question":%q,"state":"Ohio"}`, obesityQ),
			`{"Ohio":30}`},
		{"/api/best5", fmt.Sprintf(`{"question":%q}`, obesityQ),
			`{"Utah":20,"Iowa":25,"Ohio":30,"Texas":35}`},
		{"/api/worst5", fmt.Sprintf(`{"question":%q}`, strengthQ),
			`{"Ohio":40,"Utah":50}`},
		{"/api/global_mean", fmt.Sprintf(`{"question":%q}`, obesityQ),
			`{"global_mean":28}`},
		{"/api/diff_from_mean", fmt.Sprintf(`{"question":%q}`, obesityQ),
			`{"Utah":8,"Iowa":3,"Ohio":-2,"Texas":-7}`},
		{"/api/state_diff_from_mean", fmt.Sprintf(`{"question":%q,"state":"Texas"}`, obesityQ),
			`{"Texas":-7}`},
		{"/api/mean_by_category", fmt.Sprintf(`{"question":%q}`, strengthQ),
			`{"('Ohio', 'Gender', 'Male')":40,"('Utah', 'Gender', 'Female')":50}`},
		{"/api/state_mean_by_category", fmt.Sprintf(`{"question":%q,"state":"Ohio"}`, strengthQ),
			`{"Ohio":{"('Gender', 'Male')":40}}`},
	}

	for _, tc := range cases {
		id := submit(t, ts, tc.endpoint, tc.body)
		assert.Equal(t, tc.want, pollDone(t, ts, id), tc.endpoint)
	}
}

func TestErrorPayloadsReachDone(t *testing.T) {
	ts, _ := startServer(t)

	id := submit(t, ts, "/api/best5", `{"question":"no such question"}`)
	assert.Equal(t, `{"error":"No data available for the given question"}`, pollDone(t, ts, id))
}

func TestJobEnumerationAndQueueDepth(t *testing.T) {
	ts, _ := startServer(t)

	for i := 0; i < 4; i++ {
		submit(t, ts, "/api/global_mean", fmt.Sprintf(`{"question":%q}`, obesityQ))
	}
	pollDone(t, ts, 4)

	resp, err := http.Get(ts.URL + "/api/num_jobs")
	require.NoError(t, err)
	assert.Equal(t, `{"num_pending_job":"0"}`, strings.TrimSpace(readAll(t, resp)))

	resp, err = http.Get(ts.URL + "/api/jobs")
	require.NoError(t, err)
	raw := readAll(t, resp)

	var listing struct {
		Status string                       `json:"status"`
		Data   []map[string]json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &listing))
	assert.Equal(t, "done", listing.Status)
	require.Len(t, listing.Data, 4)
	for i, entry := range listing.Data {
		_, ok := entry[fmt.Sprintf("job_id_%d", i+1)]
		assert.True(t, ok, "entry %d", i)
	}
}

func TestShutdownQuiescesTheServer(t *testing.T) {
	ts, p := startServer(t)

	id := submit(t, ts, "/api/global_mean", fmt.Sprintf(`{"question":%q}`, obesityQ))
	pollDone(t, ts, id)

	resp, err := http.Get(ts.URL + "/api/graceful_shutdown")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"done"}`, readAll(t, resp))
	assert.True(t, p.IsShuttingDown())

	// New submissions are rejected, old results stay readable.
	resp, err = http.Post(ts.URL+"/api/states_mean", "application/json",
		strings.NewReader(fmt.Sprintf(`{"question":%q}`, obesityQ)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"status":"error","reason":"shutting down"}`, readAll(t, resp))

	resp, err = http.Get(fmt.Sprintf("%s/api/get_results/%d", ts.URL, id))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	readAll(t, resp)
}
