package feature

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/leadscore/pkg/fetch"
)

// FeatureMetadata 特征元数据，对应 feature_meta.json
type FeatureMetadata struct {
	// FeatureColumns 特征列名列表（按顺序），即模型输入列顺序
	FeatureColumns []string `json:"feature_columns" yaml:"feature_columns"`
	// FeatureCount 特征数量，非 0 时必须与 FeatureColumns 长度一致
	FeatureCount int `json:"feature_count" yaml:"feature_count"`
	// LabelColumn 标签列名
	LabelColumn string `json:"label_column" yaml:"label_column"`
	// ModelVersion 模型版本
	ModelVersion string `json:"model_version" yaml:"model_version"`
	// CreatedAt 创建时间
	CreatedAt string `json:"created_at" yaml:"created_at"`
}

// CategoryTable 类别编码表，对应 label_encoders.json
// key 为特征名，value 为有序类别标签，下标即编码。
type CategoryTable map[string][]string

// LoadFeatureMetadataFromFile 从文件加载特征元数据
//
// 用法：
//
//	meta, err := feature.LoadFeatureMetadataFromFile("artifacts/feature_meta.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("模型版本: %s\n", meta.ModelVersion)
//
// 推荐使用接口方式：
//
//	loader := feature.NewMetadataLoader(fetch.NewAutoLoader(5 * time.Second))
//	meta, err := loader.Load(ctx, "artifacts/feature_meta.json")
func LoadFeatureMetadataFromFile(path string) (*FeatureMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取特征元数据文件失败: %w", err)
	}
	return DecodeFeatureMetadata(data, fetch.Ext(path))
}

// DecodeFeatureMetadata 按扩展名（.yaml/.yml 为 YAML，其余为 JSON）解析特征元数据并校验。
func DecodeFeatureMetadata(data []byte, ext string) (*FeatureMetadata, error) {
	var meta FeatureMetadata
	if err := unmarshal(data, ext, &meta); err != nil {
		return nil, fmt.Errorf("解析特征元数据失败: %w", err)
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Validate 校验特征列非空且数量一致
func (m *FeatureMetadata) Validate() error {
	if len(m.FeatureColumns) == 0 {
		return fmt.Errorf("feature_columns is empty")
	}
	if m.FeatureCount != 0 && m.FeatureCount != len(m.FeatureColumns) {
		return fmt.Errorf("feature_count=%d but %d feature_columns", m.FeatureCount, len(m.FeatureColumns))
	}
	return nil
}

// LoadCategoryTableFromFile 从文件加载类别编码表
func LoadCategoryTableFromFile(path string) (CategoryTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取类别编码表失败: %w", err)
	}
	return DecodeCategoryTable(data, fetch.Ext(path))
}

// DecodeCategoryTable 解析类别编码表
func DecodeCategoryTable(data []byte, ext string) (CategoryTable, error) {
	var table CategoryTable
	if err := unmarshal(data, ext, &table); err != nil {
		return nil, fmt.Errorf("解析类别编码表失败: %w", err)
	}
	return table, nil
}

func unmarshal(data []byte, ext string, out any) error {
	switch ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, out)
	default:
		return json.Unmarshal(data, out)
	}
}
