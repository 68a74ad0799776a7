package server

import (
	"bytes"
	"net/http"
	"net/url"

	log "github.com/sirupsen/logrus"

	"github.com/rushteam/leadscore"
	"github.com/rushteam/leadscore/core"
	"github.com/rushteam/leadscore/session"
)

const pageTitle = "Lead Conversion Predictor"

type pageView struct {
	Title   string
	Version string
	Fields  []fieldView
	Result  *resultView
	Error   string
}

type fieldView struct {
	Name        string
	Categorical bool
	Options     []optionView
	Number      string
}

type optionView struct {
	Label    string
	Selected bool
}

type resultView struct {
	Label      string
	Converted  bool
	Confidence string
	ReportID   string
	Bar        barChart
	Waterfall  *waterfallChart
	Top        []core.RankedAttribution
	Insights   []core.Insight
	Defaulted  []string
}

func (s *Server) fieldsFor(rec *core.LeadRecord) []fieldView {
	schema := s.engine.Schema()
	out := make([]fieldView, 0, rec.Len())
	for _, f := range rec.Fields() {
		fv := fieldView{Name: f.Name, Categorical: f.Value.Kind == core.KindCategorical}
		if fv.Categorical {
			labels, _ := schema.Categories(f.Name)
			for _, l := range labels {
				fv.Options = append(fv.Options, optionView{Label: l, Selected: l == f.Value.Text})
			}
		} else {
			fv.Number = f.Value.String()
		}
		out = append(out, fv)
	}
	return out
}

// formValues 只取 Schema 中的字段，缺失的字段交给 Normalizer 补全
func (s *Server) formValues(form url.Values) map[string]any {
	raw := make(map[string]any, s.engine.Schema().Len())
	for _, name := range s.engine.Schema().Features() {
		if vs, ok := form[name]; ok && len(vs) > 0 {
			raw[name] = vs[0]
		}
	}
	return raw
}

func (s *Server) render(w http.ResponseWriter, status int, view pageView) {
	view.Title = pageTitle
	view.Version = leadscore.Version
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, "index.html", view); err != nil {
		log.WithError(err).Error("render page failed")
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderForm 以会话缓存值（失效时回退为默认值）渲染表单
func (s *Server) renderForm(w http.ResponseWriter, status int, values map[string]any, result *resultView, msg string) {
	rec, err := s.engine.Defaults(values)
	if err != nil {
		log.WithError(err).Error("build form defaults failed")
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	s.render(w, status, pageView{Fields: s.fieldsFor(rec), Result: result, Error: msg})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	d := s.loadSession(r.Context(), id)
	s.renderForm(w, http.StatusOK, d.Values, nil, "")
}

func (s *Server) handleLoadSample(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	if err := s.sessions.SetValues(r.Context(), id, s.engine.Sample()); err != nil {
		log.WithError(err).WithField("session", id).Warn("save session failed")
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleReset 清空会话，表单回到默认值
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	if err := s.sessions.Clear(r.Context(), id); err != nil {
		log.WithError(err).WithField("session", id).Warn("clear session failed")
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handlePredictForm(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	if err := r.ParseForm(); err != nil {
		s.renderForm(w, http.StatusBadRequest, nil, nil, "invalid form: "+err.Error())
		return
	}
	raw := s.formValues(r.PostForm)

	d := s.loadSession(r.Context(), id)
	d.Values = raw
	lctx, rep, err := s.predict(r.Context(), raw)
	if err != nil {
		s.saveSession(r.Context(), id, d)
		s.renderForm(w, statusFor(err), raw, nil, err.Error())
		return
	}
	d.LastReport = &session.ReportRef{ID: rep.ID, CreatedAt: rep.CreatedAt, Values: lctx.Record.Values()}
	s.saveSession(r.Context(), id, d)

	result := &resultView{
		Label:      lctx.Prediction.Label(),
		Converted:  lctx.Prediction.Converted,
		Confidence: lctx.Prediction.ConfidenceString(),
		ReportID:   rep.ID,
		Bar:        confidenceBar(lctx.Prediction.Probability),
		Top:        lctx.TopFeatures,
		Insights:   lctx.Insights,
		Defaulted:  lctx.Record.Defaulted(),
	}
	if lctx.Attribution != nil {
		wf := waterfall(s.engine.Waterfall(*lctx.Attribution))
		result.Waterfall = &wf
	}
	s.render(w, http.StatusOK, pageView{Fields: s.fieldsFor(lctx.Record), Result: result})
}

// handleSessionReport 为会话中最近一次成功的预测生成报告，报告 ID 与历史记录一致
func (s *Server) handleSessionReport(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	d := s.loadSession(r.Context(), id)
	if d.LastReport == nil || d.LastReport.ID == "" {
		http.Error(w, "no prediction in this session", http.StatusNotFound)
		return
	}
	lctx, err := s.engine.Run(r.Context(), d.LastReport.Values)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	rep := s.reportOf(lctx)
	rep.ID = d.LastReport.ID
	rep.CreatedAt = d.LastReport.CreatedAt
	s.writePDF(w, rep)
}
