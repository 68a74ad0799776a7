package feature

import (
	"context"

	"github.com/rushteam/leadscore/core"
	"github.com/rushteam/leadscore/pkg/fetch"
)

// MetadataLoader 特征元数据加载器接口
// 支持从不同来源加载特征元数据（本地文件、HTTP 接口等）
type MetadataLoader interface {
	// Load 加载特征元数据
	// source 是数据源标识（文件路径、URL 等）
	Load(ctx context.Context, source string) (*FeatureMetadata, error)
}

// CategoryLoader 类别编码表加载器接口
type CategoryLoader interface {
	Load(ctx context.Context, source string) (CategoryTable, error)
}

// SourceMetadataLoader 基于 fetch.Loader 的特征元数据加载器
type SourceMetadataLoader struct {
	src fetch.Loader
}

// NewMetadataLoader 创建特征元数据加载器
func NewMetadataLoader(src fetch.Loader) *SourceMetadataLoader {
	return &SourceMetadataLoader{src: src}
}

// Load 读取并解析特征元数据
func (l *SourceMetadataLoader) Load(ctx context.Context, source string) (*FeatureMetadata, error) {
	data, err := l.src.Load(ctx, source)
	if err != nil {
		return nil, core.ErrInvalidArtifact(err, "load feature metadata %s", source)
	}
	meta, err := DecodeFeatureMetadata(data, fetch.Ext(source))
	if err != nil {
		return nil, core.ErrInvalidArtifact(err, "feature metadata %s", source)
	}
	return meta, nil
}

// SourceCategoryLoader 基于 fetch.Loader 的类别编码表加载器
type SourceCategoryLoader struct {
	src fetch.Loader
}

// NewCategoryLoader 创建类别编码表加载器
func NewCategoryLoader(src fetch.Loader) *SourceCategoryLoader {
	return &SourceCategoryLoader{src: src}
}

// Load 读取并解析类别编码表
func (l *SourceCategoryLoader) Load(ctx context.Context, source string) (CategoryTable, error) {
	data, err := l.src.Load(ctx, source)
	if err != nil {
		return nil, core.ErrInvalidArtifact(err, "load category table %s", source)
	}
	table, err := DecodeCategoryTable(data, fetch.Ext(source))
	if err != nil {
		return nil, core.ErrInvalidArtifact(err, "category table %s", source)
	}
	return table, nil
}

// LoadSchema 加载特征元数据与类别编码表并构建 Schema。
func LoadSchema(ctx context.Context, src fetch.Loader, metaSource, categorySource string) (*Schema, *FeatureMetadata, error) {
	meta, err := NewMetadataLoader(src).Load(ctx, metaSource)
	if err != nil {
		return nil, nil, err
	}
	table, err := NewCategoryLoader(src).Load(ctx, categorySource)
	if err != nil {
		return nil, nil, err
	}
	schema, err := NewSchema(meta.FeatureColumns, table)
	if err != nil {
		return nil, nil, err
	}
	return schema, meta, nil
}
