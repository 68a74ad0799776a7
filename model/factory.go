package model

import (
	"context"
	"time"

	"github.com/rushteam/leadscore/core"
	"github.com/rushteam/leadscore/pkg/fetch"
)

// 支持的模型类型
const (
	TypeForest = "forest"
	TypeLR     = "lr"
	TypeRPC    = "rpc"
)

// Spec 描述如何加载一个 Classifier
type Spec struct {
	Type     string        // forest / lr / rpc
	Source   string        // forest、lr 的制品路径或 URL
	Endpoint string        // rpc 推理服务地址
	Timeout  time.Duration // rpc 超时
	Columns  []string      // 模型输入列顺序（来自特征元数据）
}

// Load 根据 Spec 加载 Classifier，并校验其输入宽度与 Columns 一致。
func Load(ctx context.Context, src fetch.Loader, spec Spec) (Classifier, error) {
	switch spec.Type {
	case TypeForest, "", TypeLR:
		data, err := src.Load(ctx, spec.Source)
		if err != nil {
			return nil, core.ErrInvalidArtifact(err, "load model %s", spec.Source)
		}
		return Decode(spec, data)
	default:
		return Decode(spec, nil)
	}
}

// Decode 从已读取的制品内容构建 Classifier，rpc 模型忽略 data。
func Decode(spec Spec, data []byte) (Classifier, error) {
	switch spec.Type {
	case TypeForest, "":
		rf, err := LoadRandomForest(data)
		if err != nil {
			return nil, core.ErrInvalidArtifact(err, "model %s", spec.Source)
		}
		if len(spec.Columns) != 0 && rf.NumFeatures() != len(spec.Columns) {
			return nil, core.ErrInvalidArtifact(nil, "model expects %d features, feature list has %d", rf.NumFeatures(), len(spec.Columns))
		}
		return rf, nil
	case TypeLR:
		lr, err := LoadLRModel(data, spec.Columns)
		if err != nil {
			return nil, core.ErrInvalidArtifact(err, "model %s", spec.Source)
		}
		return lr, nil
	case TypeRPC:
		if spec.Endpoint == "" {
			return nil, core.ErrInvalidArtifact(nil, "rpc model requires an endpoint")
		}
		return NewRPCModel(TypeRPC, spec.Endpoint, spec.Timeout, len(spec.Columns)), nil
	default:
		return nil, core.ErrInvalidArtifact(nil, "unknown model type %q", spec.Type)
	}
}
