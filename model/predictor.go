package model

import (
	"context"
	"math"

	"github.com/rushteam/leadscore/core"
)

// Threshold 是固定的判定阈值：正类概率严格大于 0.5 判为已转化（平票归类别 0）。
const Threshold = 0.5

// probEpsilon 容忍模型输出的浮点误差
const probEpsilon = 1e-9

// Predictor 把单个 EncodedVector 送入 Classifier，得到 PredictionResult。
// 不重试；任何模型错误都以 INFERENCE_ERROR 返回，并中止本次请求。
type Predictor struct {
	Model Classifier
	// Width 为期望的输入宽度（通常为 Schema 的特征数），0 时使用 Model.NumFeatures()
	Width int
}

// NewPredictor 创建预测器
func NewPredictor(m Classifier, width int) *Predictor {
	return &Predictor{Model: m, Width: width}
}

func (p *Predictor) width() int {
	if p.Width > 0 {
		return p.Width
	}
	return p.Model.NumFeatures()
}

// Predict 预测单条线索
func (p *Predictor) Predict(ctx context.Context, vec core.EncodedVector) (core.PredictionResult, error) {
	if w := p.width(); w > 0 && vec.Len() != w {
		return core.PredictionResult{}, core.ErrInference(nil, "input has %d features, model expects %d", vec.Len(), w)
	}
	values := vec.Values()
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return core.PredictionResult{}, core.ErrInference(nil, "feature %d is not finite (%v)", i, v)
		}
	}

	out, err := p.Model.PredictProba(ctx, [][]float64{values})
	if err != nil {
		return core.PredictionResult{}, core.ErrInference(err, "%s model", p.Model.Name())
	}
	prob, err := PositiveProbability(out)
	if err != nil {
		return core.PredictionResult{}, err
	}
	return core.PredictionResult{Converted: prob > Threshold, Probability: prob}, nil
}

// PositiveProbability 校验单行输出并返回类别 1 的概率
func PositiveProbability(out [][]float64) (float64, error) {
	if len(out) != 1 {
		return 0, core.ErrInference(nil, "model returned %d rows for 1 input", len(out))
	}
	row := out[0]
	if len(row) < 2 {
		return 0, core.ErrInference(nil, "model returned %d class probabilities, want at least 2", len(row))
	}
	var total float64
	for c, v := range row {
		if math.IsNaN(v) || v < -probEpsilon || v > 1+probEpsilon {
			return 0, core.ErrInference(nil, "class %d probability %v outside [0,1]", c, v)
		}
		total += v
	}
	if math.Abs(total-1) > 1e-6 {
		return 0, core.ErrInference(nil, "class probabilities sum to %v", total)
	}
	return math.Min(1, math.Max(0, row[1])), nil
}
