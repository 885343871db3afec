package graph

import (
	"encoding/json"
	"testing"

	"vision/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeClassesFor(t *testing.T) {
	tests := []struct {
		name   string
		result *models.RenderResult
		node   string
		want   string
	}{
		{
			name:   "blocked self by risk score",
			result: &models.RenderResult{Address: "0xA", RiskScore: models.Float64(100)},
			node:   "0xa",
			want:   "node halo halo-red band-high",
		},
		{
			name:   "other node elevated",
			result: &models.RenderResult{Address: "0xA", Score: models.Float64(70)},
			node:   "0xB",
			want:   "node band-elevated",
		},
		{
			name:   "empty",
			result: &models.RenderResult{},
			node:   "",
			want:   "node band-moderate",
		},
		{
			name:   "nil result",
			result: nil,
			node:   "0xa",
			want:   "node band-moderate",
		},
		{
			name:   "self not blocked",
			result: &models.RenderResult{Address: "0xabc", Score: models.Float64(85)},
			node:   "0xABC",
			want:   "node halo band-high",
		},
		{
			name:   "empty addresses never halo",
			result: &models.RenderResult{Address: "", Block: true},
			node:   "",
			want:   "node band-high",
		},
		{
			name:   "sanction hits blocks",
			result: &models.RenderResult{Address: "0xa", SanctionHits: true, Score: models.Float64(10)},
			node:   "0xa",
			want:   "node halo halo-red band-high",
		},
		{
			name:   "risk score wins over score",
			result: &models.RenderResult{RiskScore: models.Float64(20), Score: models.Float64(90)},
			want:   "node band-moderate",
		},
		{
			name:   "risk score 99 not blocked",
			result: &models.RenderResult{Address: "0xa", RiskScore: models.Float64(99)},
			node:   "0xa",
			want:   "node halo band-high",
		},
		{
			name:   "boundaries",
			result: &models.RenderResult{Score: models.Float64(60)},
			want:   "node band-elevated",
		},
		{
			name:   "just below elevated",
			result: &models.RenderResult{Score: models.Float64(59.9)},
			want:   "node band-moderate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NodeClassesFor(tt.result, tt.node))
		})
	}
}

func TestNodeClassesFor_FromJSON(t *testing.T) {
	tests := []struct {
		raw  string
		node string
		want string
	}{
		{`{"address":"0xA","risk_score":100}`, "0xa", "node halo halo-red band-high"},
		{`{"address":"0xA","score":70}`, "0xB", "node band-elevated"},
		{`{}`, "", "node band-moderate"},
		// 非数值分数视为缺失
		{`{"risk_score":"100","score":65}`, "", "node band-elevated"},
		{`{"address":"0xa","block":1}`, "0xA", "node halo halo-red band-high"},
		{`{"address":"0xa","sanctionHits":"yes"}`, "0xa", "node halo halo-red band-high"},
		{`{"address":"0xa","block":0,"sanctionHits":""}`, "0xa", "node halo band-moderate"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var result models.RenderResult
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &result))
			assert.Equal(t, tt.want, NodeClassesFor(&result, tt.node))
		})
	}
}

func TestEffectiveScore(t *testing.T) {
	assert.Equal(t, 0.0, EffectiveScore(nil))
	assert.Equal(t, 0.0, EffectiveScore(&models.RenderResult{}))
	assert.Equal(t, 42.0, EffectiveScore(&models.RenderResult{Score: models.Float64(42)}))
	assert.Equal(t, 7.0, EffectiveScore(&models.RenderResult{RiskScore: models.Float64(7), Score: models.Float64(42)}))
}
