package feature

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/rushteam/leadscore/core"
	"github.com/rushteam/leadscore/pkg/fetch"
)

// BackgroundSet 是解释器使用的参考背景集：固定数量的已编码样本（通常取自训练集）。
// 启动时加载一次，只读共享。
//
// 支持两种格式：
//   - JSON：{"feature_columns": [...], "rows": [[...], ...]}
//   - Parquet：每行一个样本，repeated double 列 "values"
type BackgroundSet struct {
	columns []string
	rows    [][]float64
}

type backgroundJSON struct {
	FeatureColumns []string    `json:"feature_columns"`
	Rows           [][]float64 `json:"rows"`
}

// BackgroundRow 是 Parquet 格式中的一行
type BackgroundRow struct {
	Values []float64 `parquet:"values"`
}

// NewBackgroundSet 复制 rows 构造背景集；columns 可为空。
func NewBackgroundSet(columns []string, rows [][]float64) *BackgroundSet {
	bs := &BackgroundSet{
		columns: append([]string(nil), columns...),
		rows:    make([][]float64, len(rows)),
	}
	for i, r := range rows {
		bs.rows[i] = append([]float64(nil), r...)
	}
	return bs
}

// LoadBackgroundSet 从文件或 URL 加载背景集，.parquet 按 Parquet 解析，其余按 JSON。
func LoadBackgroundSet(ctx context.Context, src fetch.Loader, source string) (*BackgroundSet, error) {
	data, err := src.Load(ctx, source)
	if err != nil {
		return nil, core.ErrInvalidArtifact(err, "load background set %s", source)
	}
	var bs *BackgroundSet
	if fetch.Ext(source) == ".parquet" {
		bs, err = DecodeBackgroundParquet(data)
	} else {
		bs, err = DecodeBackgroundJSON(data)
	}
	if err != nil {
		return nil, core.ErrInvalidArtifact(err, "background set %s", source)
	}
	return bs, nil
}

// DecodeBackgroundJSON 解析 JSON 背景集
func DecodeBackgroundJSON(data []byte) (*BackgroundSet, error) {
	var raw backgroundJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse background json: %w", err)
	}
	return &BackgroundSet{columns: raw.FeatureColumns, rows: raw.Rows}, nil
}

// DecodeBackgroundParquet 解析 Parquet 背景集
func DecodeBackgroundParquet(data []byte) (*BackgroundSet, error) {
	rows, err := parquet.Read[BackgroundRow](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse background parquet: %w", err)
	}
	bs := &BackgroundSet{rows: make([][]float64, len(rows))}
	for i, r := range rows {
		bs.rows[i] = r.Values
	}
	return bs, nil
}

// WriteParquet 以 Parquet 格式写出背景集
func (b *BackgroundSet) WriteParquet(w io.Writer) error {
	rows := make([]BackgroundRow, len(b.rows))
	for i, r := range b.rows {
		rows[i] = BackgroundRow{Values: r}
	}
	writer := parquet.NewGenericWriter[BackgroundRow](w)
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("failed to write background rows: %w", err)
	}
	return writer.Close()
}

// Validate 校验背景集与 Schema 一致：列名（若提供）完全相同，且每行宽度等于特征数。
func (b *BackgroundSet) Validate(schema *Schema) error {
	if len(b.rows) == 0 {
		return core.ErrInvalidArtifact(nil, "background set is empty")
	}
	if len(b.columns) > 0 {
		want := schema.Features()
		if len(b.columns) != len(want) {
			return core.ErrInvalidArtifact(nil, "background set has %d columns, schema has %d", len(b.columns), len(want))
		}
		for i := range want {
			if b.columns[i] != want[i] {
				return core.ErrInvalidArtifact(nil, "background column %d is %q, schema expects %q", i, b.columns[i], want[i])
			}
		}
	}
	for i, r := range b.rows {
		if len(r) != schema.Len() {
			return core.ErrInvalidArtifact(nil, "background row %d has %d values, schema has %d", i, len(r), schema.Len())
		}
	}
	return nil
}

// Len 返回样本数量
func (b *BackgroundSet) Len() int { return len(b.rows) }

// Rows 返回前 limit 行（limit <= 0 表示全部）。返回的切片与背景集共享底层数据，调用方不得修改。
func (b *BackgroundSet) Rows(limit int) [][]float64 {
	if limit <= 0 || limit >= len(b.rows) {
		return b.rows
	}
	return b.rows[:limit]
}
