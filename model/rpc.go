package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RPCModel 是通过 HTTP 调用外部模型服务的 Classifier 实现。
// 适用于 sklearn / XGBoost 模型部署在独立推理服务的场景。
type RPCModel struct {
	name      string
	Endpoint  string // 例如 "http://localhost:8080/predict"
	Timeout   time.Duration
	Client    *http.Client
	nFeatures int
}

func NewRPCModel(name, endpoint string, timeout time.Duration, nFeatures int) *RPCModel {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	if name == "" {
		name = "rpc"
	}
	return &RPCModel{
		name:     name,
		Endpoint: endpoint,
		Timeout:  timeout,
		Client: &http.Client{
			Timeout: timeout,
		},
		nFeatures: nFeatures,
	}
}

func (m *RPCModel) Name() string {
	return m.name
}

func (m *RPCModel) NumFeatures() int { return m.nFeatures }

// PredictProba 调用远程模型服务进行批量预测。
// 请求格式（JSON）：
//
//	{"instances": [[1, 1, 90, 5, 3, 3, 4, 0, 2], ...]}
//
// 响应格式（JSON）：
//
//	{"probabilities": [[0.27, 0.73], ...]}
func (m *RPCModel) PredictProba(ctx context.Context, rows [][]float64) ([][]float64, error) {
	if m.Client == nil {
		m.Client = &http.Client{Timeout: m.Timeout}
	}

	if len(rows) == 0 {
		return [][]float64{}, nil
	}

	// 构建请求
	jsonData, err := json.Marshal(map[string]any{"instances": rows})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// 发送请求
	resp, err := m.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpc call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("rpc error: status=%d, read body failed: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("rpc error: status=%d, body=%s", resp.StatusCode, string(body))
	}

	// 解析响应
	var result struct {
		Probabilities [][]float64 `json:"probabilities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(result.Probabilities) != len(rows) {
		return nil, fmt.Errorf("response probabilities count mismatch: expected %d, got %d", len(rows), len(result.Probabilities))
	}

	return result.Probabilities, nil
}
