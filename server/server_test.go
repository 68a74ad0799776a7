package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/leadscore"
	"github.com/rushteam/leadscore/config"
	"github.com/rushteam/leadscore/core"
	"github.com/rushteam/leadscore/explain"
	"github.com/rushteam/leadscore/history"
	"github.com/rushteam/leadscore/session"
	"github.com/rushteam/leadscore/store"
)

func testEngine(t *testing.T) *leadscore.Engine {
	t.Helper()
	dir, err := filepath.Abs(filepath.Join("..", "testdata", "artifacts"))
	require.NoError(t, err)
	v := config.NewViper()
	v.Set("artifacts.feature_meta", filepath.Join(dir, "feature_meta.json"))
	v.Set("artifacts.encoders", filepath.Join(dir, "label_encoders.json"))
	v.Set("artifacts.model", filepath.Join(dir, "forest.json"))
	v.Set("artifacts.background", filepath.Join(dir, "background.json"))
	cfg, err := config.Load(v, "")
	require.NoError(t, err)
	e, err := leadscore.New(context.Background(), cfg)
	require.NoError(t, err)
	return e
}

func newTestServer(t *testing.T, withHistory bool) *Server {
	t.Helper()
	st := store.NewMemoryStore()
	t.Cleanup(func() { _ = st.Close() })

	var hist *history.Store
	if withHistory {
		var err error
		hist, err = history.Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = hist.Close() })
	}
	s, err := New(config.ServerConfig{Addr: "127.0.0.1:0"}, testEngine(t), session.NewManager(st, time.Hour), hist)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func postJSON(t *testing.T, s *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return do(t, s, req)
}

func sampleForm() url.Values {
	form := url.Values{}
	for k, v := range leadscore.Sample() {
		form.Set(k, fmt.Sprint(v))
	}
	return form
}

func postForm(t *testing.T, s *Server, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return do(t, s, req, cookies...)
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", session.CookieName)
	return nil
}

func TestNew_Validation(t *testing.T) {
	_, err := New(config.ServerConfig{}, nil, nil, nil)
	assert.Error(t, err)
}

func TestHealthAndInfo(t *testing.T) {
	s := newTestServer(t, false)

	w := do(t, s, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var health map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])

	w = do(t, s, httptest.NewRequest(http.MethodGet, "/info", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var info leadscore.Info
	require.NoError(t, json.NewDecoder(w.Body).Decode(&info))
	assert.Equal(t, leadscore.Version, info.Version)
	assert.Equal(t, "forest", info.Model)
	assert.Equal(t, 9, info.Features)
}

func TestAPI_SchemaAndSample(t *testing.T) {
	s := newTestServer(t, false)

	w := do(t, s, httptest.NewRequest(http.MethodGet, "/api/schema", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var schema struct {
		Features []featureInfo `json:"features"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&schema))
	require.Len(t, schema.Features, 9)
	assert.Equal(t, "Lead Origin", schema.Features[0].Name)
	assert.Equal(t, "categorical", schema.Features[0].Kind)
	assert.Equal(t, "API", schema.Features[0].Default)
	assert.Contains(t, schema.Features[0].Options, "Landing Page Submission")
	assert.Equal(t, "numeric", schema.Features[2].Kind)
	assert.Equal(t, 0.0, schema.Features[2].Default)
	assert.Empty(t, schema.Features[2].Options)

	w = do(t, s, httptest.NewRequest(http.MethodGet, "/api/sample", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var sample map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&sample))
	assert.Equal(t, leadscore.Sample(), sample)
}

type apiPrediction struct {
	RequestID  string `json:"request_id"`
	Prediction struct {
		Converted  bool   `json:"converted"`
		Label      string `json:"label"`
		Confidence string `json:"confidence"`
	} `json:"prediction"`
	Defaulted   []string                 `json:"defaulted"`
	Waterfall   *explain.Waterfall       `json:"waterfall"`
	TopFeatures []core.RankedAttribution `json:"top_features"`
	Insights    []core.Insight           `json:"insights"`
	ReportID    string                   `json:"report_id"`
}

func TestAPI_Predict(t *testing.T) {
	s := newTestServer(t, false)

	t.Run("sample", func(t *testing.T) {
		w := postJSON(t, s, "/api/predict", leadscore.Sample())
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp apiPrediction
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.True(t, resp.Prediction.Converted)
		assert.Equal(t, "Converted", resp.Prediction.Label)
		assert.Equal(t, "73.33%", resp.Prediction.Confidence)
		assert.Len(t, resp.TopFeatures, 5)
		assert.Empty(t, resp.Insights)
		assert.Empty(t, resp.Defaulted)
		require.NotNil(t, resp.Waterfall)
		assert.Len(t, resp.Waterfall.Steps, 9)
		assert.NotEmpty(t, resp.ReportID)
		assert.NotEmpty(t, resp.RequestID)
	})

	t.Run("low engagement", func(t *testing.T) {
		raw := leadscore.Sample()
		raw["Total Time Spent on Website"] = 10
		w := postJSON(t, s, "/api/predict", raw)
		require.Equal(t, http.StatusOK, w.Code)
		var resp apiPrediction
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "Not Converted", resp.Prediction.Label)
		assert.Equal(t, "40.00%", resp.Prediction.Confidence)
		require.Len(t, resp.Insights, 1)
		assert.Equal(t, "low_engagement", resp.Insights[0].Name)
	})

	t.Run("empty object uses defaults", func(t *testing.T) {
		w := postJSON(t, s, "/api/predict", map[string]any{})
		require.Equal(t, http.StatusOK, w.Code)
		var resp apiPrediction
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Len(t, resp.Defaulted, 9)
	})

	bad := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"array", "[1, 2]"},
		{"null", "null"},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(tt.body))
			w := do(t, s, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			var resp map[string]string
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Contains(t, resp["error"], "invalid request body")
		})
	}
}

func TestAPI_Report(t *testing.T) {
	s := newTestServer(t, false)

	w := postJSON(t, s, "/api/report", leadscore.Sample())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="lead_report.pdf"`)
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")))
}

func TestAPI_History(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		s := newTestServer(t, false)
		w := do(t, s, httptest.NewRequest(http.MethodGet, "/api/history", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("records successful predictions", func(t *testing.T) {
		s := newTestServer(t, true)
		require.Equal(t, http.StatusOK, postJSON(t, s, "/api/predict", leadscore.Sample()).Code)
		require.Equal(t, http.StatusOK, postForm(t, s, "/predict", sampleForm()).Code)
		require.Equal(t, http.StatusBadRequest, do(t, s, httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader("{"))).Code)

		w := do(t, s, httptest.NewRequest(http.MethodGet, "/api/history", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Entries []history.Entry `json:"entries"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		require.Len(t, resp.Entries, 2)
		assert.Equal(t, "Converted", resp.Entries[0].Label)
		assert.Equal(t, "73.33%", resp.Entries[0].Confidence)

		w = do(t, s, httptest.NewRequest(http.MethodGet, "/api/history?limit=1", nil))
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Len(t, resp.Entries, 1)

		for _, q := range []string{"abc", "0", "-3"} {
			w = do(t, s, httptest.NewRequest(http.MethodGet, "/api/history?limit="+q, nil))
			assert.Equal(t, http.StatusBadRequest, w.Code, q)
		}
	})
}

func TestPage_SessionFlow(t *testing.T) {
	s := newTestServer(t, false)

	// 首次访问签发会话并以默认值渲染
	w := do(t, s, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	cookie := sessionCookie(t, w)
	assert.True(t, session.ValidID(cookie.Value))
	body := w.Body.String()
	assert.Contains(t, body, pageTitle)
	assert.Contains(t, body, `<option value="API" selected>`)
	assert.Contains(t, body, `value="0"`)

	// 加载示例后表单预填
	w = postForm(t, s, "/sample", url.Values{}, cookie)
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))

	w = do(t, s, httptest.NewRequest(http.MethodGet, "/", nil), cookie)
	require.Equal(t, http.StatusOK, w.Code)
	body = w.Body.String()
	assert.Contains(t, body, `<option value="Landing Page Submission" selected>`)
	assert.Contains(t, body, `value="90"`)

	// 预测
	w = postForm(t, s, "/predict", sampleForm(), cookie)
	require.Equal(t, http.StatusOK, w.Code)
	body = w.Body.String()
	assert.Contains(t, body, "Converted")
	assert.Contains(t, body, "73.33%")
	assert.Contains(t, body, `fill="#2e7d32"`)
	assert.Contains(t, body, `class="waterfall"`)
	assert.Contains(t, body, `class="top-features"`)
	assert.Contains(t, body, `href="/report.pdf"`)

	d, err := s.sessions.Load(context.Background(), cookie.Value)
	require.NoError(t, err)
	require.NotNil(t, d.LastReport)
	assert.NotEmpty(t, d.LastReport.ID)
	assert.Equal(t, "90", d.Values["Total Time Spent on Website"])
	assert.Equal(t, 90.0, d.LastReport.Values["Total Time Spent on Website"])

	// 报告沿用最近一次成功预测的报告 ID
	w = do(t, s, httptest.NewRequest(http.MethodGet, "/report.pdf", nil), cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, d.LastReport.ID, w.Header().Get(reportIDHeader))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")))

	// 重置后表单回到默认值，报告不再可用
	w = postForm(t, s, "/reset", url.Values{}, cookie)
	require.Equal(t, http.StatusSeeOther, w.Code)
	w = do(t, s, httptest.NewRequest(http.MethodGet, "/", nil), cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `<option value="API" selected>`)
	w = do(t, s, httptest.NewRequest(http.MethodGet, "/report.pdf", nil), cookie)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPage_LowEngagementWarning(t *testing.T) {
	s := newTestServer(t, false)

	form := sampleForm()
	form.Set("Total Time Spent on Website", "10")
	w := postForm(t, s, "/predict", form)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Not Converted")
	assert.Contains(t, body, "40.00%")
	assert.Contains(t, body, `fill="#c62828"`)
	assert.Contains(t, body, "This lead has very low engagement on the website.")
}

func TestPage_InvalidCachedValuesFallBack(t *testing.T) {
	s := newTestServer(t, false)

	form := sampleForm()
	form.Set("City", "Atlantis")
	w := postForm(t, s, "/predict", form)
	require.Equal(t, http.StatusOK, w.Code)
	cookie := sessionCookie(t, w)
	assert.Contains(t, w.Body.String(), "Default values were used for: City")

	w = do(t, s, httptest.NewRequest(http.MethodGet, "/", nil), cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `<option value="Mumbai" selected>`)
}

func TestPage_ReportWithoutSession(t *testing.T) {
	s := newTestServer(t, false)
	w := do(t, s, httptest.NewRequest(http.MethodGet, "/report.pdf", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPage_ReportAfterSampleOnly(t *testing.T) {
	s := newTestServer(t, false)

	w := postForm(t, s, "/sample", url.Values{})
	require.Equal(t, http.StatusSeeOther, w.Code)
	cookie := sessionCookie(t, w)

	w = do(t, s, httptest.NewRequest(http.MethodGet, "/report.pdf", nil), cookie)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPage_ReportMatchesHistory(t *testing.T) {
	s := newTestServer(t, true)

	w := postForm(t, s, "/predict", sampleForm())
	require.Equal(t, http.StatusOK, w.Code)
	cookie := sessionCookie(t, w)

	// 之后改写表单取值不影响上一次预测的报告
	require.NoError(t, s.sessions.SetValues(context.Background(), cookie.Value, map[string]any{"City": "Pune"}))

	w = do(t, s, httptest.NewRequest(http.MethodGet, "/report.pdf", nil), cookie)
	require.Equal(t, http.StatusOK, w.Code)

	entries, err := s.history.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entries[0].ReportID, w.Header().Get(reportIDHeader))
}

func TestAPI_Background(t *testing.T) {
	s := newTestServer(t, false)

	w := do(t, s, httptest.NewRequest(http.MethodGet, "/api/background?limit=2", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Rows [][]struct {
			Name  string `json:"name"`
			Kind  string `json:"kind"`
			Value any    `json:"value"`
		} `json:"rows"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Rows, 2)
	first := resp.Rows[0]
	require.Len(t, first, 9)
	assert.Equal(t, "Lead Origin", first[0].Name)
	assert.Equal(t, "Landing Page Submission", first[0].Value)
	assert.Equal(t, "numeric", first[2].Kind)
	assert.Equal(t, 12.0, first[2].Value)
	assert.Equal(t, "Ringing", first[8].Value)

	w = do(t, s, httptest.NewRequest(http.MethodGet, "/api/background", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Len(t, resp.Rows, 8)

	w = do(t, s, httptest.NewRequest(http.MethodGet, "/api/background?limit=x", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_ConcurrentPredictions(t *testing.T) {
	s := newTestServer(t, true)

	g, _ := errgroup.WithContext(context.Background())
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			raw := leadscore.Sample()
			if i%2 == 1 {
				raw["Total Time Spent on Website"] = 10
			}
			body, _ := json.Marshal(raw)
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/predict", bytes.NewReader(body)))
			if w.Code != http.StatusOK {
				return fmt.Errorf("status %d: %s", w.Code, w.Body.String())
			}
			var resp apiPrediction
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				return err
			}
			want := "73.33%"
			if i%2 == 1 {
				want = "40.00%"
			}
			if resp.Prediction.Confidence != want {
				return fmt.Errorf("request %d: got %s, want %s", i, resp.Prediction.Confidence, want)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	entries, err := s.history.Recent(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, entries, 8)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unknown feature", core.ErrUnknownFeature("Nope"), http.StatusBadRequest},
		{"wrapped unknown category", fmt.Errorf("wrap: %w", core.ErrUnknownCategory("City", "Atlantis")), http.StatusBadRequest},
		{"inference", core.ErrInference(errors.New("timeout"), "rpc model"), http.StatusBadGateway},
		{"canceled", context.Canceled, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestConfidenceBar(t *testing.T) {
	tests := []struct {
		p         float64
		wantColor string
		wantFill  float64
	}{
		{0.42, colorNotConverted, 0.42 * barWidth},
		{0.5, colorNotConverted, 0.5 * barWidth},
		{0.51, colorConverted, 0.51 * barWidth},
		{1.2, colorConverted, barWidth},
		{-0.1, colorNotConverted, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.p), func(t *testing.T) {
			b := confidenceBar(tt.p)
			assert.Equal(t, tt.wantColor, b.Color)
			assert.InDelta(t, tt.wantFill, b.Fill, 1e-9)
			assert.Len(t, b.Ticks, 5)
		})
	}
}

func TestWaterfallChart(t *testing.T) {
	wf := explain.BuildWaterfall(core.AttributionResult{
		Baseline: 0.5,
		Output:   0.6,
		Attributions: []core.Attribution{
			{Feature: "A", Value: 0.3},
			{Feature: "B", Value: -0.2},
		},
	}, 10)
	c := waterfall(wf)
	require.Len(t, c.Rows, 2)
	assert.Equal(t, "A", c.Rows[0].Feature)
	assert.Equal(t, "+0.300", c.Rows[0].Value)
	assert.Equal(t, colorPositive, c.Rows[0].Color)
	assert.Equal(t, colorNegative, c.Rows[1].Color)
	for _, r := range c.Rows {
		assert.GreaterOrEqual(t, r.X, c.PlotLeft)
		assert.LessOrEqual(t, r.X+r.W, c.PlotRight+1e-9)
		assert.Greater(t, r.W, 0.0)
	}
	assert.Less(t, c.Rows[0].Y, c.Rows[1].Y)

	// 全部贡献为 0 时仍有有效的缩放区间
	flat := waterfall(explain.BuildWaterfall(core.AttributionResult{
		Baseline: 0.4, Output: 0.4, Attributions: []core.Attribution{{Feature: "A"}},
	}, 10))
	assert.InDelta(t, flat.BaseX, flat.OutX, 1e-9)
}
