package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/leadscore"
)

// writeConfig 生成指向 testdata 制品的配置文件，并开启预测历史
func writeConfig(t *testing.T, history bool) string {
	t.Helper()
	artifacts, err := filepath.Abs(filepath.Join("..", "..", "testdata", "artifacts"))
	require.NoError(t, err)
	dir := t.TempDir()
	cfg := fmt.Sprintf(`log_level: error
artifacts:
  feature_meta: %q
  encoders: %q
  model: %q
  background: %q
history:
  enabled: %t
  path: %q
`,
		filepath.Join(artifacts, "feature_meta.json"),
		filepath.Join(artifacts, "label_encoders.json"),
		filepath.Join(artifacts, "forest.json"),
		filepath.Join(artifacts, "background.json"),
		history,
		filepath.Join(dir, "history.db"),
	)
	path := filepath.Join(dir, "leadscore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "--config", writeConfig(t, false), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version: "+leadscore.Version)
}

func TestPredictCmd_JSON(t *testing.T) {
	out, err := run(t, "--config", writeConfig(t, false), "predict", "--sample", "--json")
	require.NoError(t, err)

	var res struct {
		Label       string           `json:"label"`
		Confidence  string           `json:"confidence"`
		TopFeatures []map[string]any `json:"top_features"`
		Defaulted   []string         `json:"defaulted"`
		Inputs      []map[string]any `json:"inputs"`
		Model       string           `json:"model"`
		ReportID    string           `json:"report_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "Converted", res.Label)
	assert.Equal(t, "73.33%", res.Confidence)
	assert.Len(t, res.TopFeatures, 5)
	assert.Empty(t, res.Defaulted)
	assert.Equal(t, "forest", res.Model)
	require.Len(t, res.Inputs, 9)
	assert.Equal(t, "Lead Origin", res.Inputs[0]["name"])
	assert.NotEmpty(t, res.ReportID)
}

func TestPredictCmd_Text(t *testing.T) {
	cfg := writeConfig(t, false)

	out, err := run(t, "--config", cfg, "predict", "--sample", "--set", "Total Time Spent on Website=10", "--top-n", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Prediction: Not Converted")
	assert.Contains(t, out, "Confidence: 40.00%")
	assert.Contains(t, out, "WARNING: This lead has very low engagement on the website.")
	assert.Contains(t, out, "Top 3 influential features:")

	out, err = run(t, "--config", cfg, "predict", "--set", "City=Atlantis")
	require.NoError(t, err)
	assert.Contains(t, out, "Defaults used for: ")
	assert.Contains(t, out, "City")
}

func TestPredictCmd_PDFAndHistory(t *testing.T) {
	cfg := writeConfig(t, true)
	pdf := filepath.Join(t.TempDir(), "lead_report.pdf")

	_, err := run(t, "--config", cfg, "predict", "--sample", "--pdf", pdf)
	require.NoError(t, err)
	data, err := os.ReadFile(pdf)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))

	_, err = run(t, "--config", cfg, "predict", "--sample", "--set", "Total Time Spent on Website=10")
	require.NoError(t, err)

	out, err := run(t, "--config", cfg, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "73.33%")
	assert.Contains(t, out, "40.00%")

	out, err = run(t, "--config", cfg, "history", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "40.00%")
	assert.NotContains(t, out, "73.33%")
}

func TestHistoryCmd_Disabled(t *testing.T) {
	_, err := run(t, "--config", writeConfig(t, false), "history")
	assert.ErrorContains(t, err, "history is disabled")
}

func TestSchemaCmd(t *testing.T) {
	out, err := run(t, "--config", writeConfig(t, false), "schema")
	require.NoError(t, err)
	for _, name := range []string{"Lead Origin", "Total Time Spent on Website", "Tags", "categorical", "numeric"} {
		assert.Contains(t, out, name)
	}
}

func TestPredictCmd_Errors(t *testing.T) {
	cfg := writeConfig(t, false)
	tests := []struct {
		name string
		args []string
	}{
		{"bad set", []string{"predict", "--set", "no-equals"}},
		{"missing input", []string{"predict", "--input", filepath.Join(t.TempDir(), "nope.json")}},
		{"missing config", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--config", cfg}, tt.args...)
			if tt.args == nil {
				args = []string{"--config", filepath.Join(t.TempDir(), "nope.yaml"), "version"}
			}
			_, err := run(t, args...)
			assert.Error(t, err)
		})
	}
}

func TestParseSet(t *testing.T) {
	tests := []struct {
		in      string
		wantKey string
		wantVal string
		wantErr bool
	}{
		{"City=Mumbai", "City", "Mumbai", false},
		{" Tags = a=b", "Tags", " a=b", false},
		{"Total Time Spent on Website=", "Total Time Spent on Website", "", false},
		{"=x", "", "", true},
		{"nothing", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			k, v, err := parseSet(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, k)
			assert.Equal(t, tt.wantVal, v)
		})
	}
}

func TestBuildInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lead.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"City": "Pune", "Page Views Per Visit": 2}`), 0o644))

	raw, err := buildInput(true, path, []string{"City=Thane"})
	require.NoError(t, err)
	assert.Equal(t, "Thane", raw["City"])
	assert.Equal(t, 2.0, raw["Page Views Per Visit"])
	assert.Equal(t, 90.0, raw["Total Time Spent on Website"])

	raw, err = buildInput(false, "", nil)
	require.NoError(t, err)
	assert.Empty(t, raw)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[1]`), 0o644))
	_, err = buildInput(false, bad, nil)
	assert.Error(t, err)
}

func TestTextBar(t *testing.T) {
	assert.Equal(t, "[----------]", textBar(0, 10))
	assert.Equal(t, "[#######---]", textBar(0.7333, 10))
	assert.Equal(t, "[##########]", textBar(1.5, 10))
	assert.Equal(t, 12, len(textBar(0.5, 10)))
	assert.True(t, strings.HasPrefix(textBar(0.4, 10), "[####-"))
}
