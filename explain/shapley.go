// Package explain 计算单条线索的特征贡献（interventional Shapley 值），并给出 Top-N 与瀑布图数据。
package explain

import (
	"context"
	"fmt"
	"math/bits"
	"math/rand/v2"

	"github.com/rushteam/leadscore/core"
	"github.com/rushteam/leadscore/model"
)

const (
	MethodExact       = "exact"
	MethodPermutation = "permutation"

	DefaultTargetClass   = 1
	DefaultExactLimit    = 12
	DefaultMaxBackground = 100
	DefaultSamples       = 256
	DefaultSeed          = 42
)

// Explainer 相对背景集计算目标类别输出的 Shapley 值。
//
// 价值函数 v(S) = mean_b f(x_S, b_rest)：S 中的特征取输入值，其余特征取背景样本值。
//   - 特征数 <= ExactLimit 时枚举全部联盟，结果满足 baseline + sum(phi) = f(x)
//   - 否则使用固定种子的置换采样近似，结果可复现
//
// Baseline 为背景集上的平均输出。背景集只取前 MaxBackground 行。
type Explainer struct {
	Model       model.Classifier
	Background  [][]float64
	Features    []string
	TargetClass int
	ExactLimit  int
	Samples     int
	Seed        uint64

	// MaxBackground 为背景集行数上限，<= 0 表示不截断
	MaxBackground int
}

// Option 配置 Explainer
type Option func(*Explainer)

func WithTargetClass(c int) Option { return func(e *Explainer) { e.TargetClass = c } }
func WithExactLimit(n int) Option  { return func(e *Explainer) { e.ExactLimit = n } }
func WithSamples(n int) Option     { return func(e *Explainer) { e.Samples = n } }
func WithSeed(seed uint64) Option  { return func(e *Explainer) { e.Seed = seed } }

// WithMaxBackground 截断背景集为前 n 行
func WithMaxBackground(n int) Option { return func(e *Explainer) { e.MaxBackground = n } }

// NewExplainer 创建解释器。features 为 Schema 顺序的特征名，background 的每行宽度必须等于 len(features)。
func NewExplainer(m model.Classifier, features []string, background [][]float64, opts ...Option) (*Explainer, error) {
	e := &Explainer{
		Model:       m,
		Background:  background,
		Features:    append([]string(nil), features...),
		TargetClass: DefaultTargetClass,
		ExactLimit:  DefaultExactLimit,
		Samples:     DefaultSamples,
		Seed:        DefaultSeed,

		MaxBackground: DefaultMaxBackground,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.MaxBackground > 0 && len(e.Background) > e.MaxBackground {
		e.Background = e.Background[:e.MaxBackground]
	}
	if len(e.Background) == 0 {
		return nil, core.NewDomainError(core.ModuleExplainer, core.ErrorCodeInvalidInput, "explainer: background set is empty")
	}
	for i, row := range e.Background {
		if len(row) != len(e.Features) {
			return nil, core.NewDomainError(core.ModuleExplainer, core.ErrorCodeInvalidInput,
				fmt.Sprintf("explainer: background row %d has %d values, want %d", i, len(row), len(e.Features)))
		}
	}
	if e.TargetClass < 0 {
		return nil, core.NewDomainError(core.ModuleExplainer, core.ErrorCodeInvalidInput,
			fmt.Sprintf("explainer: invalid target class %d", e.TargetClass))
	}
	if e.Samples <= 0 {
		e.Samples = DefaultSamples
	}
	return e, nil
}

// Method 返回对当前特征数使用的算法
func (e *Explainer) Method() string {
	if len(e.Features) <= e.ExactLimit {
		return MethodExact
	}
	return MethodPermutation
}

// Explain 计算 vec 每个特征的贡献
func (e *Explainer) Explain(ctx context.Context, vec core.EncodedVector) (core.AttributionResult, error) {
	x := vec.Values()
	if len(x) != len(e.Features) {
		return core.AttributionResult{}, core.NewDomainError(core.ModuleExplainer, core.ErrorCodeInvalidInput,
			fmt.Sprintf("explainer: input has %d values, want %d", len(x), len(e.Features)))
	}

	baseline, err := e.meanOutput(ctx, e.Background)
	if err != nil {
		return core.AttributionResult{}, err
	}
	fx, err := e.outputs(ctx, [][]float64{x})
	if err != nil {
		return core.AttributionResult{}, err
	}

	var phi []float64
	method := e.Method()
	if method == MethodExact {
		phi, err = e.exact(ctx, x)
	} else {
		phi, err = e.permutation(ctx, x)
	}
	if err != nil {
		return core.AttributionResult{}, err
	}

	res := core.AttributionResult{
		Attributions: make([]core.Attribution, len(phi)),
		Baseline:     baseline,
		Output:       fx[0],
		TargetClass:  e.TargetClass,
		Method:       method,
	}
	for i, v := range phi {
		res.Attributions[i] = core.Attribution{Feature: e.Features[i], Value: v}
	}
	return res, nil
}

// exact 枚举全部 2^M 个联盟。
// phi_i = sum_{S ⊆ N\{i}} |S|!(M-|S|-1)!/M! * (v(S ∪ {i}) - v(S))
func (e *Explainer) exact(ctx context.Context, x []float64) ([]float64, error) {
	m := len(x)
	n := 1 << m

	v := make([]float64, n)
	rows := make([][]float64, len(e.Background))
	for i := range rows {
		rows[i] = make([]float64, m)
	}
	for mask := 0; mask < n; mask++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for b, bg := range e.Background {
			z := rows[b]
			for j := 0; j < m; j++ {
				if mask&(1<<j) != 0 {
					z[j] = x[j]
				} else {
					z[j] = bg[j]
				}
			}
		}
		mean, err := e.meanOutput(ctx, rows)
		if err != nil {
			return nil, err
		}
		v[mask] = mean
	}

	weights := shapleyWeights(m)
	phi := make([]float64, m)
	for mask := 0; mask < n; mask++ {
		size := bits.OnesCount(uint(mask))
		for i := 0; i < m; i++ {
			bit := 1 << i
			if mask&bit != 0 {
				continue
			}
			phi[i] += weights[size] * (v[mask|bit] - v[mask])
		}
	}
	return phi, nil
}

// permutation 对偶置换采样：每次抽取一个置换并同时使用其逆序，两者共用背景第 p % B 行
// （p 为对偶编号）作为起点，依次把特征替换为输入值，累计每一步的边际贡献。
func (e *Explainer) permutation(ctx context.Context, x []float64) ([]float64, error) {
	m := len(x)
	rng := rand.New(rand.NewPCG(e.Seed, e.Seed^0x9e3779b97f4a7c15))
	phi := make([]float64, m)

	chain := make([][]float64, m+1)
	walk := func(perm []int, start []float64) error {
		z := append([]float64(nil), start...)
		chain[0] = append([]float64(nil), z...)
		for step, j := range perm {
			z[j] = x[j]
			chain[step+1] = append([]float64(nil), z...)
		}
		out, err := e.outputs(ctx, chain)
		if err != nil {
			return err
		}
		for step, j := range perm {
			phi[j] += out[step+1] - out[step]
		}
		return nil
	}

	reversed := make([]int, m)
	for k := 0; k < e.Samples; k += 2 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		perm := rng.Perm(m)
		start := e.Background[(k/2)%len(e.Background)]
		if err := walk(perm, start); err != nil {
			return nil, err
		}
		if k+1 >= e.Samples {
			break
		}
		for i, j := range perm {
			reversed[m-1-i] = j
		}
		if err := walk(reversed, start); err != nil {
			return nil, err
		}
	}
	for i := range phi {
		phi[i] /= float64(e.Samples)
	}
	return phi, nil
}

func (e *Explainer) meanOutput(ctx context.Context, rows [][]float64) (float64, error) {
	out, err := e.outputs(ctx, rows)
	if err != nil {
		return 0, err
	}
	var sum float64
	for _, v := range out {
		sum += v
	}
	return sum / float64(len(out)), nil
}

// outputs 返回每行目标类别的模型输出
func (e *Explainer) outputs(ctx context.Context, rows [][]float64) ([]float64, error) {
	proba, err := e.Model.PredictProba(ctx, rows)
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleExplainer, core.ErrorCodeInference, err, "explainer: %s model", e.Model.Name())
	}
	if len(proba) != len(rows) {
		return nil, core.NewDomainError(core.ModuleExplainer, core.ErrorCodeInference,
			fmt.Sprintf("explainer: model returned %d rows for %d inputs", len(proba), len(rows)))
	}
	out := make([]float64, len(rows))
	for i, p := range proba {
		if e.TargetClass >= len(p) {
			return nil, core.NewDomainError(core.ModuleExplainer, core.ErrorCodeInvalidInput,
				fmt.Sprintf("explainer: target class %d but model returns %d classes", e.TargetClass, len(p)))
		}
		out[i] = p[e.TargetClass]
	}
	return out, nil
}

// shapleyWeights 返回 w[s] = s!(M-s-1)!/M! = 1 / (M * C(M-1, s))
func shapleyWeights(m int) []float64 {
	w := make([]float64, m)
	c := 1.0 // C(M-1, s)
	for s := 0; s < m; s++ {
		w[s] = 1 / (float64(m) * c)
		c = c * float64(m-1-s) / float64(s+1)
	}
	return w
}
