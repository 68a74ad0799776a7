package builders

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/leadscore/config"
	"github.com/rushteam/leadscore/core"
	"github.com/rushteam/leadscore/explain"
	"github.com/rushteam/leadscore/feature"
	"github.com/rushteam/leadscore/insight"
	"github.com/rushteam/leadscore/report"
)

func TestBuilders_Registered(t *testing.T) {
	assert.Subset(t, config.SupportedTypes(), config.DefaultNodeTypes)
}

func TestBuilders_MissingResources(t *testing.T) {
	tests := []struct {
		name  string
		build config.BuilderFunc
	}{
		{"normalize", BuildNormalizeNode},
		{"encode", BuildEncodeNode},
		{"predict", BuildPredictNode},
		{"explain", BuildExplainNode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build(nil, &config.Resources{})
			assert.Error(t, err)
			_, err = tt.build(nil, nil)
			assert.Error(t, err)
		})
	}
}

func TestBuildEncodeNode_FromSchema(t *testing.T) {
	schema, err := feature.NewSchema([]string{"City", "TotalVisits"}, map[string][]string{"City": {"Mumbai", "Pune"}})
	require.NoError(t, err)

	n, err := BuildEncodeNode(nil, &config.Resources{Schema: schema})
	require.NoError(t, err)
	node, ok := n.(*feature.EncodeNode)
	require.True(t, ok)
	assert.NotNil(t, node.Encoder)
}

func TestBuildExplainNode_TopN(t *testing.T) {
	res := &config.Resources{Explainer: &explain.Explainer{}, TopN: 7}
	tests := []struct {
		name string
		cfg  map[string]interface{}
		want int
	}{
		{"resource default", nil, 7},
		{"int override", map[string]interface{}{"top_n": 3}, 3},
		{"float override", map[string]interface{}{"top_n": 4.0}, 4},
		{"non-positive", map[string]interface{}{"top_n": 0}, explain.DefaultTopN},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := BuildExplainNode(tt.cfg, res)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n.(*explain.ExplainNode).TopN)
		})
	}
}

func TestBuildInsightNode(t *testing.T) {
	global, err := insight.Compile(insight.DefaultRules())
	require.NoError(t, err)

	n, err := BuildInsightNode(nil, &config.Resources{Rules: global})
	require.NoError(t, err)
	assert.Same(t, global, n.(*insight.InsightNode).Rules)

	cfg := map[string]interface{}{
		"rules": []interface{}{
			map[string]interface{}{
				"name":    "many_visits",
				"expr":    `lead["TotalVisits"] >= 10.0`,
				"level":   "info",
				"message": "Frequent visitor.",
			},
		},
	}
	n, err = BuildInsightNode(cfg, &config.Resources{Rules: global})
	require.NoError(t, err)

	rec, err := core.NewLeadRecord([]core.Field{{Name: "TotalVisits", Value: core.Numeric(12)}}, nil)
	require.NoError(t, err)
	lctx := core.NewLeadContext("req", nil)
	lctx.Record = rec
	require.NoError(t, n.Process(context.Background(), lctx))
	require.Len(t, lctx.Insights, 1)
	assert.Equal(t, "many_visits", lctx.Insights[0].Name)
	assert.Equal(t, "Frequent visitor.", lctx.Insights[0].Message)

	_, err = BuildInsightNode(map[string]interface{}{"rules": []interface{}{"oops"}}, nil)
	assert.Error(t, err)
	_, err = BuildInsightNode(map[string]interface{}{"rules": []interface{}{map[string]interface{}{"expr": "true"}}}, nil)
	assert.True(t, core.IsInvalidInput(err))
}

func TestBuildReportNode_Clock(t *testing.T) {
	now := func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	n, err := BuildReportNode(nil, &config.Resources{Now: now})
	require.NoError(t, err)
	assert.NotNil(t, n.(*report.ReportNode).Now)

	n, err = BuildReportNode(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, n.(*report.ReportNode).Now)
}
