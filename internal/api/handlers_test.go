package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"bikedash/internal/config"
	"bikedash/internal/engine"
	"bikedash/internal/metrics"
	"bikedash/internal/models"
	"bikedash/internal/session"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jan1 = 14975 // 2011-01-01

// newTestServer serves 59 days (January and February 2011).
func newTestServer(t *testing.T, cfg config.ServerConfig) (*echo.Echo, *session.Manager) {
	t.Helper()
	n := 59
	dates := make([]int32, n)
	temp := make([]float64, n)
	cnt := make([]float64, n)
	season := make([]float64, n)
	weather := make([]float64, n)
	for i := 0; i < n; i++ {
		dates[i] = int32(jan1 + i)
		temp[i] = 0.1 + float64(i%10)/20
		cnt[i] = float64(1000 + 10*i)
		season[i] = 1
		weather[i] = float64(i%2 + 1)
	}
	store, err := engine.NewColumnStore(dates,
		[]string{"season", "weathersit", "temp", "cnt"},
		[][]float64{season, weather, temp, cnt})
	require.NoError(t, err)
	eng, err := engine.New(store)
	require.NoError(t, err)

	m := metrics.New()
	sessions := session.NewManager(eng, session.Config{}, zerolog.Nop(), m)
	t.Cleanup(sessions.CloseAll)
	h := NewHandler(eng, sessions, m, zerolog.Nop())
	return NewServer(cfg, h, zerolog.Nop()), sessions
}

func defaultServerConfig() config.ServerConfig {
	return config.ServerConfig{
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
		AllowedOrigins: []string{"*"},
	}
}

func do(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createSession(t *testing.T, e *echo.Echo, variant int) models.Render {
	t.Helper()
	rec := do(t, e, http.MethodPost, "/api/sessions", `{"variant":`+strconv.Itoa(variant)+`}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[models.Render](t, rec)
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode[map[string]string](t, rec)
	require.Contains(t, body, "error")
	return body["error"]
}

func TestDatasetAndHealth(t *testing.T) {
	e, _ := newTestServer(t, defaultServerConfig())

	rec := do(t, e, http.MethodGet, "/api/dataset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode[models.DatasetInfo](t, rec)
	assert.Equal(t, 59, info.Rows)
	assert.Equal(t, "2011-01-01", info.Start.String())
	assert.Equal(t, "2011-02-28", info.End.String())
	assert.Equal(t, "cnt", info.Response)
	assert.Len(t, info.Columns, 5)

	rec = do(t, e, http.MethodGet, "/api/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, e, http.MethodGet, "/api/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bikedash_sessions_active")
}

func TestOverviewEndpoint(t *testing.T) {
	e, _ := newTestServer(t, defaultServerConfig())

	rec := do(t, e, http.MethodGet, "/api/overview", "")
	require.Equal(t, http.StatusOK, rec.Code)
	overview := decode[models.Overview](t, rec)
	assert.Len(t, overview.MonthlyRentals, 2)
	assert.Len(t, overview.SeasonTotals, 1)
	assert.Len(t, overview.WeatherTotals, 2)

	rec = do(t, e, http.MethodGet, "/api/overview?from=2011-02-01", "")
	require.Equal(t, http.StatusOK, rec.Code)
	overview = decode[models.Overview](t, rec)
	require.Len(t, overview.MonthlyRentals, 1)
	assert.Equal(t, "2011-02", overview.MonthlyRentals[0].Month)

	rec = do(t, e, http.MethodGet, "/api/overview?to=last-week", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errorMessage(t, rec)
}

func TestSessionFlow(t *testing.T) {
	e, sessions := newTestServer(t, defaultServerConfig())

	first := createSession(t, e, 2)
	assert.Equal(t, uint64(1), first.Generation)
	assert.Equal(t, 59, first.Rows)
	assert.Equal(t, 1, sessions.Len())
	base := "/api/sessions/" + first.SessionID

	rec := do(t, e, http.MethodPut, base+"/x", `{"column":"season"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	r := decode[models.Render](t, rec)
	assert.Equal(t, "season", r.Chart.X.Field)

	rec = do(t, e, http.MethodPut, base+"/y", `{"column":"temp"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, e, http.MethodPut, base+"/plot", `{"plot_type":"bar"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	r = decode[models.Render](t, rec)
	assert.Equal(t, models.MarkBar, r.Chart.Mark)

	rec = do(t, e, http.MethodPut, base+"/range", `{"start":"2011-01-01","end":"2011-01-31"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	r = decode[models.Render](t, rec)
	assert.Equal(t, 31, r.Rows)
	assert.Equal(t, 31, r.Summary.Count)

	rec = do(t, e, http.MethodPatch, base, `{"x":"temp","y":"cnt","plot_type":"scatterplot","end":"2011-01-10"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	r = decode[models.Render](t, rec)
	assert.Equal(t, 10, r.Rows)
	assert.Equal(t, "temp", r.Chart.X.Field)
	assert.Equal(t, "cnt", r.Chart.Y.Field)
	assert.Equal(t, uint64(6), r.Generation)

	rec = do(t, e, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, r, decode[models.Render](t, rec))

	rec = do(t, e, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, sessions.Len())

	rec = do(t, e, http.MethodGet, base, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	errorMessage(t, rec)
}

func TestSessionErrors(t *testing.T) {
	e, _ := newTestServer(t, defaultServerConfig())
	multi := "/api/sessions/" + createSession(t, e, 2).SessionID
	scatter := "/api/sessions/" + createSession(t, e, 1).SessionID

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"bad variant", http.MethodPost, "/api/sessions", `{"variant":3}`, http.StatusBadRequest},
		{"missing variant", http.MethodPost, "/api/sessions", `{}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/sessions", `{"variant":`, http.StatusBadRequest},
		{"unknown session", http.MethodGet, "/api/sessions/nope", "", http.StatusNotFound},
		{"unknown session delete", http.MethodDelete, "/api/sessions/nope", "", http.StatusNotFound},
		{"unknown column", http.MethodPut, multi + "/x", `{"column":"nope"}`, http.StatusBadRequest},
		{"empty column", http.MethodPut, multi + "/y", `{"column":""}`, http.StatusBadRequest},
		{"bad plot type", http.MethodPut, multi + "/plot", `{"plot_type":"pie"}`, http.StatusBadRequest},
		{"variant 1 bar", http.MethodPut, scatter + "/plot", `{"plot_type":"bar"}`, http.StatusBadRequest},
		{"bad date", http.MethodPut, multi + "/range", `{"start":"2011-02-30","end":"2011-03-01"}`, http.StatusBadRequest},
		{"missing end", http.MethodPut, multi + "/range", `{"start":"2011-01-01"}`, http.StatusBadRequest},
		{"empty patch", http.MethodPatch, multi, `{}`, http.StatusBadRequest},
		{"patch bad plot", http.MethodPatch, multi, `{"plot_type":"pie"}`, http.StatusBadRequest},
		{"patch bad date", http.MethodPatch, multi, `{"start":"yesterday"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, e, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, errorMessage(t, rec))
		})
	}

	// rejected updates did not move the generation
	rec := do(t, e, http.MethodGet, multi, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(1), decode[models.Render](t, rec).Generation)
}

func TestInvertedRangeIsEmptyNotError(t *testing.T) {
	e, _ := newTestServer(t, defaultServerConfig())
	base := "/api/sessions/" + createSession(t, e, 2).SessionID

	rec := do(t, e, http.MethodPut, base+"/range", `{"start":"2011-02-01","end":"2011-01-01"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	r := decode[models.Render](t, rec)
	assert.Equal(t, 0, r.Rows)
	assert.Equal(t, models.SummaryNoData, r.Summary.Status)
	assert.Contains(t, rec.Body.String(), `"mean":null`)

	rec = do(t, e, http.MethodPut, base+"/range", `{"start":"2015-01-01","end":"2015-12-31"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	r = decode[models.Render](t, rec)
	assert.Equal(t, 0, r.Rows)
	assert.Equal(t, models.SummaryNoData, r.Summary.Status)

	rec = do(t, e, http.MethodGet, base+"/rows", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[models.RowPage](t, rec).Total)
}

func TestRowsEndpoint(t *testing.T) {
	e, _ := newTestServer(t, defaultServerConfig())
	base := "/api/sessions/" + createSession(t, e, 2).SessionID

	rec := do(t, e, http.MethodGet, base+"/rows?limit=5&offset=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[models.RowPage](t, rec)
	assert.Equal(t, 59, page.Total)
	assert.Equal(t, 5, page.Limit)
	assert.Equal(t, 10, page.Offset)
	require.Len(t, page.Rows, 5)
	assert.Equal(t, "2011-01-11", page.Rows[0].Date.String())
	assert.Equal(t, []string{"season", "weathersit", "temp", "cnt"}, page.Columns)

	rec = do(t, e, http.MethodGet, base+"/rows?limit=abc&offset=-3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page = decode[models.RowPage](t, rec)
	assert.Equal(t, defaultRowLimit, page.Limit)
	assert.Equal(t, 0, page.Offset)
	assert.Len(t, page.Rows, 59)
}

func TestChartAndExports(t *testing.T) {
	e, _ := newTestServer(t, defaultServerConfig())
	base := "/api/sessions/" + createSession(t, e, 2).SessionID

	tests := []struct {
		path string
		mime string
	}{
		{"/chart.svg", mimeSVG},
		{"/export.xlsx", mimeXLSX},
		{"/export.arrow", mimeArrow},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := do(t, e, http.MethodGet, base+tt.path, "")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, tt.mime, rec.Header().Get(echo.HeaderContentType))
			assert.NotEmpty(t, rec.Body.Bytes())
		})
	}

	rec := do(t, e, http.MethodGet, "/api/sessions/nope/chart.svg", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := defaultServerConfig()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 2}
	e, _ := newTestServer(t, cfg)

	assert.Equal(t, http.StatusOK, do(t, e, http.MethodGet, "/api/dataset", "").Code)
	assert.Equal(t, http.StatusOK, do(t, e, http.MethodGet, "/api/dataset", "").Code)

	rec := do(t, e, http.MethodGet, "/api/dataset", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate limit exceeded", errorMessage(t, rec))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
