package model

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/leadscore/core"
	"github.com/rushteam/leadscore/pkg/fetch"
)

const artifacts = "../testdata/artifacts/"

var columns = []string{
	"Lead Origin",
	"Lead Source",
	"Total Time Spent on Website",
	"Page Views Per Visit",
	"Specialization",
	"How did you hear about us?",
	"What is your current occupation",
	"City",
	"Tags",
}

var sampleVector = []float64{1, 1, 90, 5, 3, 3, 4, 0, 2}

// fixedModel 总是返回给定的正类概率
type fixedModel struct {
	p     float64
	width int
	err   error
	rows  [][]float64
}

func (m *fixedModel) Name() string     { return "fixed" }
func (m *fixedModel) NumFeatures() int { return m.width }
func (m *fixedModel) PredictProba(ctx context.Context, rows [][]float64) ([][]float64, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.rows != nil {
		return m.rows, nil
	}
	out := make([][]float64, len(rows))
	for i := range rows {
		out[i] = []float64{1 - m.p, m.p}
	}
	return out, nil
}

func loadForest(t *testing.T) Classifier {
	t.Helper()
	m, err := Load(context.Background(), fetch.NewFileLoader(), Spec{Type: TypeForest, Source: artifacts + "forest.json", Columns: columns})
	require.NoError(t, err)
	return m
}

func TestRandomForest_PredictProba(t *testing.T) {
	rf := loadForest(t)
	assert.Equal(t, 9, rf.NumFeatures())

	lowEngagement := append([]float64(nil), sampleVector...)
	lowEngagement[2] = 10
	onThreshold := append([]float64(nil), sampleVector...)
	onThreshold[2] = 30.5

	out, err := rf.PredictProba(context.Background(), [][]float64{sampleVector, lowEngagement, onThreshold})
	require.NoError(t, err)
	require.Len(t, out, 3)

	// (0.9 + 0.6 + 0.7) / 3
	assert.InDelta(t, 2.2/3, out[0][1], 1e-12)
	assert.InDelta(t, 1-2.2/3, out[0][0], 1e-12)
	// (0.2 + 0.6 + 0.4) / 3
	assert.InDelta(t, 0.4, out[1][1], 1e-12)
	// x <= threshold goes left
	assert.InDelta(t, 0.4, out[2][1], 1e-12)

	_, err = rf.PredictProba(context.Background(), [][]float64{{1, 2}})
	assert.Error(t, err)
}

func TestLoadRandomForest_Invalid(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"not json", `{`},
		{"no trees", `{"n_features": 1, "n_classes": 2, "trees": []}`},
		{"one class", `{"n_features": 1, "n_classes": 1, "trees": [{"children_left":[-1],"children_right":[-1],"feature":[-2],"threshold":[-2],"value":[[1]]}]}`},
		{"ragged arrays", `{"n_features": 1, "n_classes": 2, "trees": [{"children_left":[-1],"children_right":[],"feature":[-2],"threshold":[-2],"value":[[1,1]]}]}`},
		{"cycle", `{"n_features": 1, "n_classes": 2, "trees": [{"children_left":[0,-1],"children_right":[1,-1],"feature":[0,-2],"threshold":[0.5,-2],"value":[[1,1],[1,1]]}]}`},
		{"feature out of range", `{"n_features": 1, "n_classes": 2, "trees": [{"children_left":[1,-1,-1],"children_right":[2,-1,-1],"feature":[3,-2,-2],"threshold":[0.5,-2,-2],"value":[[1,1],[1,0],[0,1]]}]}`},
		{"empty leaf", `{"n_features": 1, "n_classes": 2, "trees": [{"children_left":[-1],"children_right":[-1],"feature":[-2],"threshold":[-2],"value":[[0,0]]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRandomForest([]byte(tt.json))
			assert.Error(t, err)
		})
	}
}

func TestLoad_Factory(t *testing.T) {
	ctx := context.Background()
	src := fetch.NewFileLoader()

	lr, err := Load(ctx, src, Spec{Type: TypeLR, Source: artifacts + "lr.json", Columns: columns})
	require.NoError(t, err)
	assert.Equal(t, "lr", lr.Name())

	_, err = Load(ctx, src, Spec{Type: TypeForest, Source: artifacts + "forest.json", Columns: columns[:3]})
	assert.True(t, core.IsInvalidArtifact(err))

	_, err = Load(ctx, src, Spec{Type: TypeForest, Source: artifacts + "missing.json"})
	assert.True(t, core.IsInvalidArtifact(err))

	_, err = Load(ctx, src, Spec{Type: TypeRPC})
	assert.True(t, core.IsInvalidArtifact(err))

	_, err = Load(ctx, src, Spec{Type: "xgboost"})
	assert.True(t, core.IsInvalidArtifact(err))
}

func TestLRModel_PredictProba(t *testing.T) {
	lr, err := NewLRModel(-2, map[string]float64{"Total Time Spent on Website": 0.02, "Tags": 0.3}, columns)
	require.NoError(t, err)

	out, err := lr.PredictProba(context.Background(), [][]float64{sampleVector})
	require.NoError(t, err)
	z := -2 + 0.02*90 + 0.3*2
	assert.InDelta(t, 1/(1+math.Exp(-z)), out[0][1], 1e-12)
	assert.InDelta(t, 1, out[0][0]+out[0][1], 1e-12)

	_, err = NewLRModel(0, map[string]float64{"Budget": 1}, columns)
	assert.Error(t, err)
}

func TestRPCModel_PredictProba(t *testing.T) {
	var got struct {
		Instances [][]float64 `json:"instances"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewEncoder(w).Encode(map[string]any{"probabilities": [][]float64{{0.3, 0.7}}})
	}))
	defer srv.Close()

	m := NewRPCModel("", srv.URL, time.Second, 9)
	out, err := m.PredictProba(context.Background(), [][]float64{sampleVector})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.3, 0.7}}, out)
	assert.Equal(t, [][]float64{sampleVector}, got.Instances)
	assert.Equal(t, "rpc", m.Name())

	_, err = m.PredictProba(context.Background(), [][]float64{sampleVector, sampleVector})
	assert.ErrorContains(t, err, "count mismatch")
}

func TestRPCModel_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewPredictor(NewRPCModel("rpc", srv.URL, time.Second, 9), 9)
	_, err := p.Predict(context.Background(), core.NewEncodedVector(sampleVector))
	require.Error(t, err)
	assert.True(t, core.IsInferenceError(err))
	assert.ErrorContains(t, err, "status=503")
}

func TestPredictor_Threshold(t *testing.T) {
	tests := []struct {
		name          string
		p             float64
		wantConverted bool
		wantLabel     string
		wantConf      string
	}{
		{"below", 0.42, false, "Not Converted", "42.00%"},
		{"above", 0.51, true, "Converted", "51.00%"},
		{"tie goes to class 0", 0.5, false, "Not Converted", "50.00%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPredictor(&fixedModel{p: tt.p, width: 9}, 9)
			res, err := p.Predict(context.Background(), core.NewEncodedVector(sampleVector))
			require.NoError(t, err)
			assert.Equal(t, tt.wantConverted, res.Converted)
			assert.Equal(t, tt.wantLabel, res.Label())
			assert.Equal(t, tt.wantConf, res.ConfidenceString())
		})
	}
}

func TestPredictor_Forest(t *testing.T) {
	p := NewPredictor(loadForest(t), 0)
	res, err := p.Predict(context.Background(), core.NewEncodedVector(sampleVector))
	require.NoError(t, err)
	assert.True(t, res.Converted)
	assert.Equal(t, "73.33%", res.ConfidenceString())
}

func TestPredictor_InferenceErrors(t *testing.T) {
	nan := append([]float64(nil), sampleVector...)
	nan[3] = math.NaN()

	tests := []struct {
		name  string
		model Classifier
		vec   []float64
	}{
		{"wrong width", &fixedModel{p: 0.6, width: 9}, []float64{1, 2, 3}},
		{"nan input", &fixedModel{p: 0.6, width: 9}, nan},
		{"model error", &fixedModel{err: errors.New("boom"), width: 9}, sampleVector},
		{"too many rows", &fixedModel{rows: [][]float64{{0.5, 0.5}, {0.5, 0.5}}, width: 9}, sampleVector},
		{"single class", &fixedModel{rows: [][]float64{{1}}, width: 9}, sampleVector},
		{"out of range", &fixedModel{rows: [][]float64{{-0.5, 1.5}}, width: 9}, sampleVector},
		{"not a distribution", &fixedModel{rows: [][]float64{{0.5, 0.7}}, width: 9}, sampleVector},
		{"nan output", &fixedModel{rows: [][]float64{{math.NaN(), 0.5}}, width: 9}, sampleVector},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPredictor(tt.model, 0).Predict(context.Background(), core.NewEncodedVector(tt.vec))
			require.Error(t, err)
			assert.True(t, core.IsInferenceError(err))
		})
	}
}

func TestPredictNode(t *testing.T) {
	lctx := core.NewLeadContext("req", nil)
	lctx.Vector = core.NewEncodedVector(sampleVector)

	node := &PredictNode{Predictor: NewPredictor(&fixedModel{p: 0.8, width: 9}, 9)}
	require.NoError(t, node.Process(context.Background(), lctx))
	require.NotNil(t, lctx.Prediction)
	assert.True(t, lctx.Prediction.Converted)
	lbl, ok := lctx.GetLabel("model")
	require.True(t, ok)
	assert.Equal(t, "fixed", lbl.Value)
}
