package leadscore

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/leadscore/config"
	_ "github.com/rushteam/leadscore/config/builders"
	"github.com/rushteam/leadscore/core"
	"github.com/rushteam/leadscore/explain"
	"github.com/rushteam/leadscore/feature"
	"github.com/rushteam/leadscore/insight"
	"github.com/rushteam/leadscore/model"
	"github.com/rushteam/leadscore/pipeline"
	"github.com/rushteam/leadscore/pkg/fetch"
	"github.com/rushteam/leadscore/report"
)

// DefaultFetchTimeout 是单个 http(s) 制品的下载超时
const DefaultFetchTimeout = 30 * time.Second

// Engine 持有启动时加载的只读制品（Schema、模型、背景集、规则）与构建好的 Pipeline。
// 制品加载后不再修改，Run 可并发调用，每个请求使用独立的 LeadContext。
type Engine struct {
	cfg        *config.AppConfig
	schema     *feature.Schema
	meta       *feature.FeatureMetadata
	encoder    *feature.Encoder
	classifier model.Classifier
	explainer  *explain.Explainer
	pipeline   *pipeline.Pipeline
	now        func() time.Time
}

type options struct {
	loader fetch.Loader
	now    func() time.Time
}

// Option 配置 Engine
type Option func(*options)

// WithLoader 指定制品加载器，默认为本地文件与 http(s) 自动选择
func WithLoader(l fetch.Loader) Option { return func(o *options) { o.loader = l } }

// WithClock 指定报告时间来源
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// New 并发加载全部制品并构建 Pipeline，任一制品无效即返回 INVALID_ARTIFACT。
func New(ctx context.Context, cfg *config.AppConfig, opts ...Option) (*Engine, error) {
	o := &options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	if o.loader == nil {
		o.loader = fetch.NewAutoLoader(DefaultFetchTimeout)
	}

	var (
		schema     *feature.Schema
		meta       *feature.FeatureMetadata
		background *feature.BackgroundSet
		modelData  []byte
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		schema, meta, err = feature.LoadSchema(gctx, o.loader, cfg.Artifacts.FeatureMeta, cfg.Artifacts.Encoders)
		return err
	})
	g.Go(func() error {
		var err error
		background, err = feature.LoadBackgroundSet(gctx, o.loader, cfg.Artifacts.Background)
		return err
	})
	if cfg.Model.Type != model.TypeRPC {
		g.Go(func() error {
			var err error
			if modelData, err = o.loader.Load(gctx, cfg.Artifacts.Model); err != nil {
				return core.ErrInvalidArtifact(err, "load model %s", cfg.Artifacts.Model)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := background.Validate(schema); err != nil {
		return nil, err
	}
	classifier, err := model.Decode(model.Spec{
		Type:     cfg.Model.Type,
		Source:   cfg.Artifacts.Model,
		Endpoint: cfg.Model.Endpoint,
		Timeout:  cfg.Model.Timeout,
		Columns:  schema.Features(),
	}, modelData)
	if err != nil {
		return nil, err
	}

	explainer, err := explain.NewExplainer(classifier, schema.Features(), background.Rows(0),
		explain.WithTargetClass(cfg.Explain.TargetClass),
		explain.WithExactLimit(cfg.Explain.ExactLimit),
		explain.WithSamples(cfg.Explain.Samples),
		explain.WithSeed(cfg.Explain.Seed),
		explain.WithMaxBackground(cfg.Explain.MaxBackground),
	)
	if err != nil {
		return nil, err
	}
	rules, err := insight.Compile(cfg.Insights)
	if err != nil {
		return nil, err
	}

	encoder := feature.NewEncoder(schema)
	res := &config.Resources{
		Schema:    schema,
		Encoder:   encoder,
		Predictor: model.NewPredictor(classifier, schema.Len()),
		Explainer: explainer,
		Rules:     rules,
		TopN:      cfg.Explain.TopN,
		Now:       o.now,
	}
	var pcfg *pipeline.Config
	if cfg.PipelineFile != "" {
		if pcfg, err = pipeline.LoadFromFile(cfg.PipelineFile); err != nil {
			return nil, fmt.Errorf("load pipeline %s: %w", cfg.PipelineFile, err)
		}
	}
	p, err := config.BuildPipeline(pcfg, res)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		schema:     schema,
		meta:       meta,
		encoder:    encoder,
		classifier: classifier,
		explainer:  explainer,
		pipeline:   p,
		now:        o.now,
	}
	log.WithFields(log.Fields{
		"features":   schema.Len(),
		"model":      classifier.Name(),
		"version":    meta.ModelVersion,
		"background": len(explainer.Background),
		"explain":    explainer.Method(),
		"pipeline":   p.Kinds(),
	}).Info("engine ready")
	return e, nil
}

// Run 对原始输入执行完整 Pipeline。任一阶段失败即返回错误，不返回部分结果。
func (e *Engine) Run(ctx context.Context, raw map[string]any) (*core.LeadContext, error) {
	lctx := core.NewLeadContext(uuid.NewString(), raw)
	start := time.Now()
	if err := e.pipeline.Run(ctx, lctx); err != nil {
		log.WithField("request_id", lctx.RequestID).WithError(err).Warn("prediction failed")
		return nil, err
	}

	fields := log.Fields{
		"request_id": lctx.RequestID,
		"elapsed":    time.Since(start),
	}
	if lctx.Prediction != nil {
		fields["label"] = lctx.Prediction.Label()
		fields["probability"] = lctx.Prediction.Probability
	}
	if lctx.Record != nil && len(lctx.Record.Defaulted()) > 0 {
		fields["defaulted"] = strings.Join(lctx.Record.Defaulted(), ",")
	}
	log.WithFields(fields).Debug("prediction done")
	return lctx, nil
}

// Defaults 返回表单默认值：按 Schema 归一化会话缓存的取值，缺失或失效时回退为首个选项或 0.0。
func (e *Engine) Defaults(cached map[string]any) (*core.LeadRecord, error) {
	rec, err := feature.Normalize(e.schema, cached)
	if err != nil {
		return nil, err
	}
	if d := rec.Defaulted(); len(d) > 0 && len(cached) > 0 {
		log.Debugf("form defaults applied for: %s", strings.Join(d, ", "))
	}
	return rec, nil
}

// Report 由 Run 结果之外的记录与预测直接生成报告（例如 CLI 只需要 PDF 时）
func (e *Engine) Report(pred core.PredictionResult, rec *core.LeadRecord) core.Report {
	return report.Stamp(report.Build(pred, rec), e.now())
}

// RenderPDF 渲染报告
func (e *Engine) RenderPDF(w io.Writer, rep core.Report) error {
	return report.RenderPDF(w, rep)
}

// Waterfall 返回瀑布图数据，展示行数取自配置 explain.max_display
func (e *Engine) Waterfall(res core.AttributionResult) explain.Waterfall {
	return explain.BuildWaterfall(res, e.cfg.Explain.MaxDisplay)
}

// Background 把解释器使用的背景样本还原为可读记录，limit <= 0 表示全部
func (e *Engine) Background(limit int) ([][]core.Field, error) {
	rows := e.explainer.Background
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	out := make([][]core.Field, 0, len(rows))
	for i, row := range rows {
		fields, err := e.encoder.Decode(core.NewEncodedVector(row))
		if err != nil {
			return nil, core.ErrInvalidArtifact(err, "background row %d", i)
		}
		out = append(out, fields)
	}
	return out, nil
}

// Schema 返回特征注册表
func (e *Engine) Schema() *feature.Schema { return e.schema }

// Metadata 返回特征元数据
func (e *Engine) Metadata() *feature.FeatureMetadata { return e.meta }

// Sample 返回示例线索
func (e *Engine) Sample() map[string]any { return Sample() }

// Info 是引擎的描述信息，用于 /info 与 version 命令
type Info struct {
	Version      string   `json:"version"`
	Model        string   `json:"model"`
	ModelVersion string   `json:"model_version"`
	Features     int      `json:"features"`
	Background   int      `json:"background"`
	Explain      string   `json:"explain"`
	TargetClass  int      `json:"target_class"`
	Pipeline     []string `json:"pipeline"`
}

// Info 返回引擎描述
func (e *Engine) Info() Info {
	kinds := e.pipeline.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return Info{
		Version:      Version,
		Model:        e.classifier.Name(),
		ModelVersion: e.meta.ModelVersion,
		Features:     e.schema.Len(),
		Background:   len(e.explainer.Background),
		Explain:      e.explainer.Method(),
		TargetClass:  e.explainer.TargetClass,
		Pipeline:     names,
	}
}
