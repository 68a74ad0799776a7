package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rushteam/leadscore/pipeline"
)

// 使用配置驱动时，需在入口处 import _ "github.com/rushteam/leadscore/config/builders"
// 以触发内置 Node（lead.normalize、lead.encode、lead.predict 等）的 init 注册。

// BuilderFunc 根据 Node 配置与共享资源构建 Node。
// 各组件在 init 中调用 Register(typeName, builder) 即可被配置驱动。
type BuilderFunc func(cfg map[string]interface{}, res *Resources) (pipeline.Node, error)

var (
	defaultBuilders   = make(map[string]BuilderFunc)
	defaultBuildersMu sync.RWMutex
)

// Register 注册一种 Node 的构建逻辑，供 DefaultFactory 与配置驱动使用。
// 建议在各组件的 init 中调用，例如：func init() { config.Register("lead.predict", BuildPredictNode) }
func Register(typeName string, builder BuilderFunc) {
	if typeName == "" || builder == nil {
		return
	}
	defaultBuildersMu.Lock()
	defer defaultBuildersMu.Unlock()
	defaultBuilders[typeName] = builder
}

// SupportedTypes 返回当前已注册的 Node 类型列表（排序），用于错误提示与校验。
func SupportedTypes() []string {
	defaultBuildersMu.RLock()
	defer defaultBuildersMu.RUnlock()
	types := make([]string, 0, len(defaultBuilders))
	for t := range defaultBuilders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// DefaultFactory 返回绑定 res 的 NodeFactory，包含所有通过 Register 注册的 Node 类型。
func DefaultFactory(res *Resources) *pipeline.NodeFactory {
	defaultBuildersMu.RLock()
	defer defaultBuildersMu.RUnlock()
	f := pipeline.NewNodeFactory()
	for typeName, builder := range defaultBuilders {
		b := builder
		f.Register(typeName, func(cfg map[string]interface{}) (pipeline.Node, error) {
			return b(cfg, res)
		})
	}
	return f
}

// ValidatePipelineConfig 校验 pipeline 配置中所有 node 类型均已注册；若有未支持类型则返回包含已支持列表的错误。
func ValidatePipelineConfig(cfg *pipeline.Config) error {
	if cfg == nil {
		return nil
	}
	supported := SupportedTypes()
	defaultBuildersMu.RLock()
	defer defaultBuildersMu.RUnlock()
	for _, nc := range cfg.Pipeline.Nodes {
		if _, ok := defaultBuilders[nc.Type]; !ok {
			return fmt.Errorf("unsupported node type %q (supported: %v)", nc.Type, supported)
		}
	}
	return nil
}
