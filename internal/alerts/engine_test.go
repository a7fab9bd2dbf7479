package alerts

import (
	"testing"
	"time"

	"cmm/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func sample(cpu, ram, disk float64) models.MetricSample {
	return models.MetricSample{ServerID: "web-01", CPUPercent: cpu, RAMPercent: ram, DiskPercent: disk}
}

func TestEvaluateSingleCPUAlert(t *testing.T) {
	got := NewEngine(nil).Evaluate(sample(85, 50, 50), at)
	require.Len(t, got, 1)
	assert.Equal(t, models.AlertWarning, got[0].Level)
	assert.Equal(t, "High CPU: 85%", got[0].Message)
	assert.Equal(t, "web-01", got[0].ServerID)
	assert.True(t, got[0].Timestamp.Equal(at))
}

func TestEvaluateAllRules(t *testing.T) {
	got := NewEngine(nil).Evaluate(sample(90, 95, 95), at)
	require.Len(t, got, 3)
	assert.Equal(t, models.AlertWarning, got[0].Level)
	assert.Equal(t, "High CPU: 90%", got[0].Message)
	assert.Equal(t, models.AlertWarning, got[1].Level)
	assert.Equal(t, "High RAM: 95%", got[1].Message)
	assert.Equal(t, models.AlertCritical, got[2].Level)
	assert.Equal(t, "Disk nearly full: 95%", got[2].Message)
}

func TestEvaluateNoAlerts(t *testing.T) {
	assert.Empty(t, NewEngine(nil).Evaluate(sample(10, 10, 10), at))
}

func TestThresholdsAreInclusive(t *testing.T) {
	e := NewEngine(nil)
	assert.Len(t, e.Evaluate(sample(84.999, 89.999, 89.999), at), 0)
	assert.Len(t, e.Evaluate(sample(85, 90, 90), at), 3)
}

func TestEvaluateIsStateless(t *testing.T) {
	e := NewEngine(nil)
	first := e.Evaluate(sample(99, 0, 0), at)
	second := e.Evaluate(sample(99, 0, 0), at)
	assert.Equal(t, first, second)
}

func TestCustomThresholds(t *testing.T) {
	e := NewEngine(DefaultRules(Thresholds{CPU: 50}))
	got := e.Evaluate(sample(60, 10, 10), at)
	require.Len(t, got, 1)
	assert.Equal(t, "High CPU: 60%", got[0].Message)
	assert.Equal(t, 90.0, e.Rules()[1].Threshold)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "85", FormatValue(85))
	assert.Equal(t, "85.5", FormatValue(85.5))
	assert.Equal(t, "100", FormatValue(100.0))
	assert.Equal(t, "91.25", FormatValue(91.25))
}

func TestCompare(t *testing.T) {
	assert.True(t, compare(5, ">", 4))
	assert.False(t, compare(4, ">", 4))
	assert.True(t, compare(4, "<=", 4))
	assert.False(t, compare(4, "!=", 4))
}
