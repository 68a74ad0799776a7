package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

// initCELEnv 初始化 CEL 环境，定义变量
func initCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		// lead 为特征名到取值的映射，分类特征为 string，数值特征为 double
		cel.Variable("lead", cel.MapType(cel.StringType, cel.DynType)),
		// prediction 包含 converted、probability、label
		cel.Variable("prediction", cel.MapType(cel.StringType, cel.DynType)),
	)
}

// getCELEnv 获取或创建 CEL 环境
func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = initCELEnv()
	})
	return celEnv, celEnvErr
}

// Expr 是编译后的布尔表达式，可并发执行。
//
// 表达式语法（CEL 标准语法）：
//   - 数值：lead["Total Time Spent on Website"] < 30.0
//   - 分类：lead["Lead Source"] == "Google"
//   - 逻辑：lead["City"] == "Mumbai" && prediction.probability > 0.8
//   - 存在性："Tags" in lead
//
// 注意：数值特征为 double，比较时字面量需写成 30.0 而不是 30。
type Expr struct {
	source string
	prg    cel.Program
}

// Compile 编译表达式，结果类型必须为 bool
func Compile(expr string) (*Expr, error) {
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env error: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %v", issues.Err())
	}
	if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression must return boolean, got %s", ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program error: %v", err)
	}
	return &Expr{source: expr, prg: prg}, nil
}

// String 返回表达式源码
func (e *Expr) String() string { return e.source }

// Evaluate 执行表达式，返回布尔结果。
// 访问不存在的 key 会报错，应先用 "key" in lead 判断。
func (e *Expr) Evaluate(lead, prediction map[string]any) (bool, error) {
	if lead == nil {
		lead = map[string]any{}
	}
	if prediction == nil {
		prediction = map[string]any{}
	}
	out, _, err := e.prg.Eval(map[string]any{
		"lead":       lead,
		"prediction": prediction,
	})
	if err != nil {
		return false, fmt.Errorf("eval error: %v", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression must return boolean, got %T", out.Value())
	}
	return result, nil
}
