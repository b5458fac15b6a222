package prom

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kekexiaoai/check-rds/pkg/inspection"
	"github.com/kekexiaoai/check-rds/pkg/sampler"
)

// fakePrometheus 模拟 Prometheus HTTP API
type fakePrometheus struct {
	mu      sync.Mutex
	queries []string
	// rangeBody 是 /api/v1/query_range 的响应体
	rangeBody   string
	targetsBody string
	status      int
}

func (f *fakePrometheus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	w.Header().Set("Content-Type", "application/json")

	status := f.status
	if status == 0 {
		status = http.StatusOK
	}

	switch r.URL.Path {
	case "/api/v1/query_range":
		f.mu.Lock()
		f.queries = append(f.queries, r.Form.Get("query"))
		f.mu.Unlock()
		w.WriteHeader(status)
		fmt.Fprint(w, f.rangeBody)
	case "/api/v1/targets":
		w.WriteHeader(status)
		fmt.Fprint(w, f.targetsBody)
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, f *fakePrometheus) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, WithTimeout(5*time.Second), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return client
}

func matrixBody(values string) string {
	return `{"status":"success","data":{"resultType":"matrix","result":[` +
		`{"metric":{"dbinstance_identifier":"prod-db"},"values":[` + values + `]}]}}`
}

const emptyMatrix = `{"status":"success","data":{"resultType":"matrix","result":[]}}`

func testRef(stat sampler.Statistic) sampler.MetricRef {
	return sampler.MetricRef{
		Namespace:  "AWS/RDS",
		Name:       "CPUUtilization",
		Dimensions: []sampler.Dimension{{Name: "DBInstanceIdentifier", Value: "prod-db"}},
		Statistic:  stat,
	}
}

func loadProfile(t *testing.T) *inspection.Profile {
	t.Helper()
	p, err := inspection.LoadBuiltinProfile(inspection.DefaultProfileName)
	require.NoError(t, err)
	return p
}

func TestBuildQuery(t *testing.T) {
	src := NewSource(nil, loadProfile(t))

	testCases := []struct {
		stat sampler.Statistic
		want string
	}{
		{sampler.StatisticMaximum, `max_over_time((aws_rds_cpuutilization_maximum{job="cloudwatch",dbinstance_identifier="prod-db"})[5m:])`},
		{sampler.StatisticMinimum, `min_over_time((aws_rds_cpuutilization_minimum{job="cloudwatch",dbinstance_identifier="prod-db"})[5m:])`},
		{sampler.StatisticSampleCount, `count_over_time((aws_rds_cpuutilization_samplecount{job="cloudwatch",dbinstance_identifier="prod-db"})[5m:])`},
	}
	for _, tc := range testCases {
		t.Run(string(tc.stat), func(t *testing.T) {
			q, err := src.BuildQuery(sampler.Query{Ref: testRef(tc.stat), Period: 300 * time.Second})
			require.NoError(t, err)
			assert.Equal(t, tc.want, q)
		})
	}
}

func TestBuildQuery_Vars(t *testing.T) {
	src := NewSource(nil, loadProfile(t), WithVars(map[string]string{"job": "rds"}), WithRegion("eu-central-1"))

	q, err := src.BuildQuery(sampler.Query{Ref: testRef(sampler.StatisticMaximum), Period: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, `max_over_time((aws_rds_cpuutilization_maximum{job="rds",dbinstance_identifier="prod-db"})[1m:])`, q)
}

func TestBuildQuery_EscapesDimensionValues(t *testing.T) {
	src := NewSource(nil, loadProfile(t))

	ref := testRef(sampler.StatisticMaximum)
	ref.Dimensions = []sampler.Dimension{{Name: "DBInstanceIdentifier", Value: "a\"b\\c\nd"}}
	q, err := src.BuildQuery(sampler.Query{Ref: ref, Period: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, `max_over_time((aws_rds_cpuutilization_maximum{job="cloudwatch",dbinstance_identifier="a\"b\\c\nd"})[1m:])`, q)
}

func TestBuildQuery_Errors(t *testing.T) {
	src := NewSource(nil, loadProfile(t))

	_, err := src.BuildQuery(sampler.Query{Ref: testRef("p99"), Period: time.Minute})
	assert.ErrorContains(t, err, "not supported")

	ref := testRef(sampler.StatisticMaximum)
	ref.Name = "ReplicaLag"
	_, err = src.BuildQuery(sampler.Query{Ref: ref, Period: time.Minute})
	assert.ErrorContains(t, err, "not defined")
}

func TestGetStatistics(t *testing.T) {
	f := &fakePrometheus{rangeBody: matrixBody(`[1714564500,"12.5"],[1714564800,"NaN"],[1714564800,"42"]`)}
	src := NewSource(newTestClient(t, f), loadProfile(t), WithSourceLogger(zaptest.NewLogger(t)))

	end := time.Unix(1714564800, 0)
	points, err := src.GetStatistics(context.Background(), sampler.Query{
		Ref:    testRef(sampler.StatisticMaximum),
		Start:  end.Add(-5 * time.Minute),
		End:    end,
		Period: 5 * time.Minute,
	})
	require.NoError(t, err)
	require.Len(t, points, 2)

	latest, ok := sampler.Latest(points)
	require.True(t, ok)
	assert.Equal(t, 42.0, latest.Value)
	assert.True(t, latest.Timestamp.Equal(end))

	require.Len(t, f.queries, 1)
	assert.Contains(t, f.queries[0], "max_over_time(")
}

func TestGetStatistics_Empty(t *testing.T) {
	f := &fakePrometheus{rangeBody: emptyMatrix}
	src := NewSource(newTestClient(t, f), loadProfile(t))

	end := time.Unix(1714564800, 0)
	points, err := src.GetStatistics(context.Background(), sampler.Query{
		Ref: testRef(sampler.StatisticMinimum), Start: end.Add(-5 * time.Minute), End: end, Period: 5 * time.Minute,
	})
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestGetStatistics_ServerError(t *testing.T) {
	f := &fakePrometheus{
		status:    http.StatusBadRequest,
		rangeBody: `{"status":"error","errorType":"bad_data","error":"parse error"}`,
	}
	src := NewSource(newTestClient(t, f), loadProfile(t))

	end := time.Unix(1714564800, 0)
	_, err := src.GetStatistics(context.Background(), sampler.Query{
		Ref: testRef(sampler.StatisticMinimum), Start: end.Add(-5 * time.Minute), End: end, Period: 5 * time.Minute,
	})
	assert.ErrorContains(t, err, "query range execution failed")
}

func TestSamplerWithPrometheus(t *testing.T) {
	f := &fakePrometheus{rangeBody: matrixBody(`[1714564800,"73"]`)}
	src := NewSource(newTestClient(t, f), loadProfile(t))

	s := sampler.New(src, sampler.WithClock(func() time.Time { return time.Unix(1714564800, 0) }))
	sample, err := s.Sample(context.Background(), testRef(sampler.StatisticMaximum))
	require.NoError(t, err)
	require.False(t, sample.Absent())
	assert.Equal(t, 73.0, *sample.Value)
	assert.Equal(t, 1, sample.Attempts)
}

func TestPreflight(t *testing.T) {
	target := func(job, health, lastErr string) string {
		return fmt.Sprintf(`{"discoveredLabels":{},"labels":{"job":%q},"scrapePool":%q,"scrapeUrl":"http://exporter:9106/metrics",`+
			`"globalUrl":"http://exporter:9106/metrics","lastError":%q,"lastScrape":"2024-05-01T12:00:00Z","lastScrapeDuration":0.5,"health":%q}`,
			job, job, lastErr, health)
	}
	targets := func(items ...string) string {
		body := `{"status":"success","data":{"activeTargets":[`
		for i, it := range items {
			if i > 0 {
				body += ","
			}
			body += it
		}
		return body + `],"droppedTargets":[]}}`
	}

	testCases := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"Healthy", targets(target("cloudwatch", "up", ""), target("cloudwatch", "down", "timeout")), ""},
		{"NoTargets", targets(target("node", "up", "")), "no targets"},
		{"AllDown", targets(target("cloudwatch", "down", "connection refused")), "connection refused"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakePrometheus{targetsBody: tc.body}
			src := NewSource(newTestClient(t, f), loadProfile(t))
			err := src.Preflight(context.Background())
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestJobStats(t *testing.T) {
	f := &fakePrometheus{targetsBody: `{"status":"success","data":{"activeTargets":[` +
		`{"labels":{"job":"rds"},"health":"up","lastScrape":"2024-05-01T12:00:00Z"},` +
		`{"labels":{"job":"rds"},"health":"unknown","lastScrape":"2024-05-01T12:00:00Z"},` +
		`{"labels":{"job":"rds"},"health":"down","lastError":"EOF","lastScrape":"2024-05-01T12:00:00Z"}` +
		`],"droppedTargets":[]}}`}
	client := newTestClient(t, f)

	stats, err := client.JobTargetStats(context.Background(), "rds")
	require.NoError(t, err)
	assert.Equal(t, TargetPoolStats{Job: "rds", TotalCount: 3, OnlineCount: 1, OfflineCount: 1, UnknownCount: 1, LastError: "EOF"}, stats)
	assert.True(t, stats.Healthy())
}
