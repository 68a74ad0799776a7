// Package history 把完成的预测记录到 SQLite，供审计与回看。
package history

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/rushteam/leadscore/core"
)

const (
	// DefaultLimit 是 Recent 的默认条数
	DefaultLimit = 20

	// timeLayout 为定长 UTC 格式，字符串排序即时间排序
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

var (
	//go:embed sql/*
	f embed.FS
)

// Entry 是一条预测记录
type Entry struct {
	ReportID    string         `json:"report_id"`
	CreatedAt   time.Time      `json:"created_at"`
	Label       string         `json:"label"`
	Converted   bool           `json:"converted"`
	Probability float64        `json:"probability"`
	Confidence  string         `json:"confidence"`
	Inputs      map[string]any `json:"inputs"`
}

// Store 是基于 SQLite 的预测历史
type Store struct {
	db *sql.DB
}

// Open 打开（必要时创建）数据库并建表
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history: path not specified")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// SQLite 单写者
	db.SetMaxOpenConns(1)

	b, err := f.ReadFile("sql/ddl.sql")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: read schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(b)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: create schema in %s: %w", path, err)
	}
	log.Debugf("history db ready: %s", path)
	return &Store{db: db}, nil
}

// Record 保存一次完成的预测
func (s *Store) Record(ctx context.Context, rep core.Report, pred core.PredictionResult) error {
	inputs := make(map[string]any, len(rep.Inputs))
	for _, f := range rep.Inputs {
		inputs[f.Name] = f.Value.Any()
	}
	b, err := json.Marshal(inputs)
	if err != nil {
		return fmt.Errorf("history: encode inputs: %w", err)
	}
	created := rep.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO prediction (report_id, created_at, label, converted, probability, confidence, inputs)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rep.ID, created.UTC().Format(timeLayout), rep.Prediction, pred.Converted,
		pred.Probability, rep.Confidence, string(b))
	if err != nil {
		return fmt.Errorf("history: insert %s: %w", rep.ID, err)
	}
	return nil
}

// Recent 返回最近的 limit 条记录，新记录在前
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT report_id, created_at, label, converted, probability, confidence, inputs
		 FROM prediction ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			created string
			inputs  string
		)
		if err := rows.Scan(&e.ReportID, &created, &e.Label, &e.Converted, &e.Probability, &e.Confidence, &inputs); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		if e.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("history: parse time %q: %w", created, err)
		}
		if err := json.Unmarshal([]byte(inputs), &e.Inputs); err != nil {
			return nil, fmt.Errorf("history: decode inputs of %s: %w", e.ReportID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close 关闭数据库
func (s *Store) Close() error {
	return s.db.Close()
}
