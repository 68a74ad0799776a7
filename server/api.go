package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/rushteam/leadscore/core"
	"github.com/rushteam/leadscore/explain"
	"github.com/rushteam/leadscore/history"
	"github.com/rushteam/leadscore/report"
)

// reportIDHeader 携带 PDF 对应的报告 ID
const reportIDHeader = "X-Report-ID"

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Warn("encode response failed")
	}
}

// respondError sends a JSON error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor 将领域错误映射为 HTTP 状态码
func statusFor(err error) int {
	switch {
	case core.IsInvalidInput(err), core.IsUnknownFeature(err), core.IsUnknownCategory(err):
		return http.StatusBadRequest
	case core.IsInferenceError(err):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.Info())
}

// featureInfo 描述一个输入字段
type featureInfo struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Options []string `json:"options,omitempty"`
	Default any      `json:"default"`
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.Defaults(nil)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	schema := s.engine.Schema()
	out := make([]featureInfo, 0, schema.Len())
	for _, f := range rec.Fields() {
		info := featureInfo{Name: f.Name, Kind: f.Value.Kind.String(), Default: f.Value.Any()}
		if f.Value.Kind == core.KindCategorical {
			// Defaults 的结果只含已注册特征，这里不会出错
			info.Options, _ = schema.Categories(f.Name)
		}
		out = append(out, info)
	}
	respondJSON(w, http.StatusOK, map[string]any{"features": out})
}

func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.Sample())
}

// predictionView 是预测结果的展示形式
type predictionView struct {
	Converted   bool    `json:"converted"`
	Probability float64 `json:"probability"`
	Label       string  `json:"label"`
	Confidence  string  `json:"confidence"`
}

type predictResponse struct {
	RequestID   string                   `json:"request_id"`
	Prediction  predictionView           `json:"prediction"`
	Inputs      *core.LeadRecord         `json:"inputs"`
	Defaulted   []string                 `json:"defaulted"`
	Attribution *core.AttributionResult  `json:"attribution,omitempty"`
	Waterfall   *explain.Waterfall       `json:"waterfall,omitempty"`
	TopFeatures []core.RankedAttribution `json:"top_features"`
	Insights    []core.Insight           `json:"insights"`
	ReportID    string                   `json:"report_id"`
}

func decodeLead(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	var raw map[string]any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	if raw == nil {
		return nil, errors.New("invalid request body: expected a JSON object")
	}
	return raw, nil
}

// predict 执行 Pipeline，成功后写入预测历史（写入失败只记录日志）
func (s *Server) predict(ctx context.Context, raw map[string]any) (*core.LeadContext, core.Report, error) {
	lctx, err := s.engine.Run(ctx, raw)
	if err != nil {
		return nil, core.Report{}, err
	}
	rep := s.reportOf(lctx)
	if s.history != nil {
		if err := s.history.Record(ctx, rep, *lctx.Prediction); err != nil {
			log.WithError(err).WithField("report_id", rep.ID).Warn("record history failed")
		}
	}
	return lctx, rep, nil
}

// reportOf 优先使用 Pipeline 生成的报告，未配置 report 节点时现场生成
func (s *Server) reportOf(lctx *core.LeadContext) core.Report {
	if lctx.Report != nil {
		return *lctx.Report
	}
	return s.engine.Report(*lctx.Prediction, lctx.Record)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeLead(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	lctx, rep, err := s.predict(r.Context(), raw)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	resp := predictResponse{
		RequestID: lctx.RequestID,
		Prediction: predictionView{
			Converted:   lctx.Prediction.Converted,
			Probability: lctx.Prediction.Probability,
			Label:       lctx.Prediction.Label(),
			Confidence:  lctx.Prediction.ConfidenceString(),
		},
		Inputs:      lctx.Record,
		Defaulted:   lctx.Record.Defaulted(),
		Attribution: lctx.Attribution,
		TopFeatures: lctx.TopFeatures,
		Insights:    lctx.Insights,
		ReportID:    rep.ID,
	}
	if resp.Defaulted == nil {
		resp.Defaulted = []string{}
	}
	if resp.Insights == nil {
		resp.Insights = []core.Insight{}
	}
	if lctx.Attribution != nil {
		wf := s.engine.Waterfall(*lctx.Attribution)
		resp.Waterfall = &wf
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeLead(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	_, rep, err := s.predict(r.Context(), raw)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	s.writePDF(w, rep)
}

// writePDF 先完整渲染到内存，渲染失败时仍可返回错误状态
func (s *Server) writePDF(w http.ResponseWriter, rep core.Report) {
	var buf bytes.Buffer
	if err := s.engine.RenderPDF(&buf, rep); err != nil {
		log.WithError(err).WithField("report_id", rep.ID).Error("render pdf failed")
		http.Error(w, "failed to render report", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set(reportIDHeader, rep.ID)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.WithError(err).Debug("write pdf failed")
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondError(w, http.StatusNotFound, "history is disabled")
		return
	}
	limit, err := queryLimit(r, history.DefaultLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// DefaultBackgroundLimit 是 /api/background 默认返回的样本数
const DefaultBackgroundLimit = 10

// handleBackground 返回解释器所用背景样本的可读形式
func (s *Server) handleBackground(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, DefaultBackgroundLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := s.engine.Background(limit)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

// queryLimit 解析 limit 查询参数，缺省时返回 def
func queryLimit(r *http.Request, def int) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return n, nil
}
