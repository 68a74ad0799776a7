package core

import (
	"errors"
	"fmt"
)

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）、消息（Message）与所属模块（Module）
//   - 可包装底层错误（Err），支持 errors.Is / errors.As 穿透
//
// 错误分类：
//   - schema：UNKNOWN_FEATURE, UNKNOWN_CATEGORY（调用方误用 Schema）
//   - encoder：ENCODING_ERROR（归一化之后仍出现未注册类别，属于不变量被破坏）
//   - predictor：INFERENCE_ERROR（模型拒绝输入或远程模型失败）
//   - artifact：INVALID_ARTIFACT（启动加载阶段的制品问题）
//   - store：NOT_FOUND
type DomainError struct {
	Code    string // 错误代码（如 "UNKNOWN_CATEGORY"）
	Message string // 错误消息
	Module  string // 模块名称（如 "schema", "encoder", "predictor"）
	Err     error  // 底层错误，可为空
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// IsDomainError 检查错误链中是否存在 DomainError
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// GetDomainError 获取错误链中的第一个 DomainError，不存在则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// WrapDomainError 创建包装了底层错误的领域错误
func WrapDomainError(module, code string, err error, format string, args ...any) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// 错误代码常量
const (
	// 通用错误代码
	ErrorCodeNotFound      = "NOT_FOUND"      // 资源不存在
	ErrorCodeInvalidInput  = "INVALID_INPUT"  // 输入无效
	ErrorCodeInternalError = "INTERNAL_ERROR" // 内部错误

	// 预测链路错误代码
	ErrorCodeUnknownFeature  = "UNKNOWN_FEATURE"  // 特征名不在 Schema 中
	ErrorCodeUnknownCategory = "UNKNOWN_CATEGORY" // 类别标签未注册
	ErrorCodeEncoding        = "ENCODING_ERROR"   // 编码阶段不变量被破坏
	ErrorCodeInference       = "INFERENCE_ERROR"  // 模型推理失败
	ErrorCodeInvalidArtifact = "INVALID_ARTIFACT" // 制品（模型/编码表/特征列表/背景集）无效
)

// 模块名称常量
const (
	ModuleStore     = "store"     // 存储模块
	ModuleSchema    = "schema"    // Schema 注册表
	ModuleEncoder   = "encoder"   // 编码器
	ModulePredictor = "predictor" // 预测器
	ModuleExplainer = "explainer" // 解释器
	ModuleReport    = "report"    // 报告
	ModuleArtifact  = "artifact"  // 制品加载
	ModuleInsight   = "insight"   // 洞察规则
	ModulePipeline  = "pipeline"  // Pipeline 编排
)

func hasCode(err error, code string) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == code
	}
	return false
}

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool { return hasCode(err, ErrorCodeNotFound) }

// IsInvalidInput 检查错误是否为 INVALID_INPUT
func IsInvalidInput(err error) bool { return hasCode(err, ErrorCodeInvalidInput) }

// IsUnknownFeature 检查错误是否为 UNKNOWN_FEATURE
func IsUnknownFeature(err error) bool { return hasCode(err, ErrorCodeUnknownFeature) }

// IsUnknownCategory 检查错误是否为 UNKNOWN_CATEGORY
func IsUnknownCategory(err error) bool { return hasCode(err, ErrorCodeUnknownCategory) }

// IsEncodingError 检查错误是否为 ENCODING_ERROR
func IsEncodingError(err error) bool { return hasCode(err, ErrorCodeEncoding) }

// IsInferenceError 检查错误是否为 INFERENCE_ERROR
func IsInferenceError(err error) bool { return hasCode(err, ErrorCodeInference) }

// IsInvalidArtifact 检查错误是否为 INVALID_ARTIFACT
func IsInvalidArtifact(err error) bool { return hasCode(err, ErrorCodeInvalidArtifact) }

// 预测链路的错误构造函数

func ErrUnknownFeature(name string) *DomainError {
	return NewDomainError(ModuleSchema, ErrorCodeUnknownFeature, fmt.Sprintf("schema: unknown feature %q", name))
}

func ErrUnknownCategory(name, label string) *DomainError {
	return NewDomainError(ModuleSchema, ErrorCodeUnknownCategory, fmt.Sprintf("schema: unknown category %q for feature %q", label, name))
}

func ErrEncoding(format string, args ...any) *DomainError {
	return NewDomainError(ModuleEncoder, ErrorCodeEncoding, "encoder: "+fmt.Sprintf(format, args...))
}

func ErrInference(err error, format string, args ...any) *DomainError {
	return WrapDomainError(ModulePredictor, ErrorCodeInference, err, "predictor: "+format, args...)
}

func ErrInvalidArtifact(err error, format string, args ...any) *DomainError {
	return WrapDomainError(ModuleArtifact, ErrorCodeInvalidArtifact, err, "artifact: "+format, args...)
}
