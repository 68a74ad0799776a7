package pipeline

import (
	"context"
	"fmt"

	"github.com/rushteam/leadscore/core"
)

// requiredKinds 是一条可产出预测结果的 Pipeline 必须包含的阶段（按顺序）。
var requiredKinds = []Kind{KindNormalize, KindEncode, KindPredict}

// Pipeline 把一次预测拆成可组合的 Node 链：归一化 -> 编码 -> 预测 -> 解释 -> 洞察 -> 报告。
// 任一 Node 失败即中止，不返回部分结果，也不重试。
type Pipeline struct {
	Nodes []Node
}

// Run 依次执行所有 Node。
func (p *Pipeline) Run(ctx context.Context, lctx *core.LeadContext) error {
	for _, node := range p.Nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := node.Process(ctx, lctx); err != nil {
			return fmt.Errorf("node %s: %w", node.Name(), err)
		}
	}
	return nil
}

// Validate 检查必需阶段均存在且相对顺序正确。
func (p *Pipeline) Validate() error {
	next := 0
	for _, node := range p.Nodes {
		if next < len(requiredKinds) && node.Kind() == requiredKinds[next] {
			next++
		}
	}
	if next < len(requiredKinds) {
		return core.NewDomainError(core.ModulePipeline, core.ErrorCodeInvalidInput,
			fmt.Sprintf("pipeline: missing %s stage (required in order: %v)", requiredKinds[next], requiredKinds))
	}
	return nil
}

// Kinds 返回各 Node 的阶段，用于日志与 /info
func (p *Pipeline) Kinds() []Kind {
	kinds := make([]Kind, len(p.Nodes))
	for i, n := range p.Nodes {
		kinds[i] = n.Kind()
	}
	return kinds
}
