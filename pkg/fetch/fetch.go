// Package fetch 读取制品原始字节，来源可以是本地文件或 HTTP(S) 接口。
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"
)

// Loader 按来源标识（文件路径或 URL）读取原始字节。
type Loader interface {
	Load(ctx context.Context, source string) ([]byte, error)
}

// FileLoader 本地文件加载器
type FileLoader struct{}

// NewFileLoader 创建本地文件加载器
func NewFileLoader() *FileLoader {
	return &FileLoader{}
}

// Load 从本地文件读取
func (l *FileLoader) Load(ctx context.Context, filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", filePath, err)
	}
	return data, nil
}

// HTTPLoader HTTP 接口加载器
type HTTPLoader struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPLoader 创建 HTTP 接口加载器，timeout 为 0 时默认 10s
//
// 用法：
//
//	loader := fetch.NewHTTPLoader(5 * time.Second)
//	data, err := loader.Load(ctx, "http://models.internal/lead/v3/forest.json")
func NewHTTPLoader(timeout time.Duration) *HTTPLoader {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPLoader{
		client: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
}

// NewHTTPLoaderWithClient 使用自定义 HTTP 客户端创建加载器
func NewHTTPLoaderWithClient(client *http.Client) *HTTPLoader {
	return &HTTPLoader{
		client:  client,
		timeout: client.Timeout,
	}
}

// Load 从 HTTP 接口读取
func (l *HTTPLoader) Load(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http get %s: status=%d, body=%s", url, resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}

// AutoLoader 根据来源前缀选择 HTTPLoader 或 FileLoader。
type AutoLoader struct {
	File *FileLoader
	HTTP *HTTPLoader
}

// NewAutoLoader 创建自动选择来源的加载器
func NewAutoLoader(timeout time.Duration) *AutoLoader {
	return &AutoLoader{
		File: NewFileLoader(),
		HTTP: NewHTTPLoader(timeout),
	}
}

func (l *AutoLoader) Load(ctx context.Context, source string) ([]byte, error) {
	if IsHTTP(source) {
		return l.HTTP.Load(ctx, source)
	}
	return l.File.Load(ctx, source)
}

// IsHTTP 检查是否包含 HTTP 前缀
func IsHTTP(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Ext 返回来源的小写扩展名（URL 会忽略查询串）。
func Ext(source string) string {
	if IsHTTP(source) {
		if i := strings.IndexAny(source, "?#"); i >= 0 {
			source = source[:i]
		}
		return strings.ToLower(path.Ext(source))
	}
	return strings.ToLower(path.Ext(source))
}
