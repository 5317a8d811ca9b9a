package alerting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/climalert/internal/models"
)

func TestExprMatcher_Compile(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		wantErr    bool
	}{
		{
			name:       "simple equality",
			expression: `uf == "AM"`,
			wantErr:    false,
		},
		{
			name:       "numeric comparison",
			expression: `max_temp >= 35`,
			wantErr:    false,
		},
		{
			name:       "boolean AND",
			expression: `uf == "SP" && humidity < 30`,
			wantErr:    false,
		},
		{
			name:       "boolean OR",
			expression: `uf == "AM" || uf == "PA"`,
			wantErr:    false,
		},
		{
			name:       "contains operator",
			expression: `description contains "chuva"`,
			wantErr:    false,
		},
		{
			name:       "membership",
			expression: `uf in ["RS", "SC", "PR"]`,
			wantErr:    false,
		},
		{
			name:       "invalid syntax",
			expression: `uf == `,
			wantErr:    true,
		},
		{
			name:       "undefined variable",
			expression: `level == "error"`,
			wantErr:    true,
		},
		{
			name:       "not boolean",
			expression: `humidity + 1`,
			wantErr:    true,
		},
		{
			name:       "empty",
			expression: "  ",
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExprMatcher(tt.expression)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestExprMatcher_Match(t *testing.T) {
	alert := models.AlertEvent{
		CityName:           "Porto Alegre",
		RegionCode:         "rs",
		TemperatureSummary: "Min: 4.5°C, Max: 12°C",
		Humidity:           "91%",
		Description:        "Chuva forte e risco de geada",
		OccurredAt:         time.Now(),
	}

	tests := []struct {
		name       string
		expression string
		alert      models.AlertEvent
		want       bool
	}{
		{"region uppercased", `uf == "RS"`, alert, true},
		{"city lowercased", `city == "porto alegre"`, alert, true},
		{"description contains", `description contains "geada"`, alert, true},
		{"min temp", `min_temp < 5`, alert, true},
		{"max temp", `max_temp > 30`, alert, false},
		{"humidity percent", `humidity >= 90`, alert, true},
		{"combined", `uf in ["RS", "SC"] && min_temp <= 5 && description contains "chuva"`, alert, true},
		{
			name:       "unknown temperature never compares",
			expression: `min_temp < 100 || max_temp > -100`,
			alert: models.AlertEvent{
				TemperatureSummary: "Temperatura não disponível",
				Humidity:           "N/A",
			},
			want: false,
		},
		{
			name:       "unknown humidity never compares",
			expression: `humidity >= 0`,
			alert:      models.AlertEvent{Humidity: "N/A"},
			want:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewExprMatcher(tt.expression)
			require.NoError(t, err)
			got, err := m.Match(tt.alert)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExprMatcher_Expression(t *testing.T) {
	m, err := NewExprMatcher(` uf == "AM" `)
	require.NoError(t, err)
	assert.Equal(t, `uf == "AM"`, m.Expression())
}
