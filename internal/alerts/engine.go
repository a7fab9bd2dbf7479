package alerts

import (
	"fmt"
	"strconv"
	"time"

	"cmm/internal/models"
)

const (
	MetricCPU  = "cpu_percent"
	MetricRAM  = "ram_percent"
	MetricDisk = "disk_percent"
)

// Rule raises an alert of Level when Metric compares true against Threshold.
// Format receives the observed value rendered without trailing zeros.
type Rule struct {
	Metric    string
	Operator  string
	Threshold float64
	Level     models.AlertLevel
	Format    string
}

// Thresholds overrides the trigger points of the default rules. Zero keeps the default.
type Thresholds struct {
	CPU  float64
	RAM  float64
	Disk float64
}

// DefaultRules are the built-in CPU, RAM and disk checks.
func DefaultRules(th Thresholds) []Rule {
	pick := func(v, def float64) float64 {
		if v > 0 {
			return v
		}
		return def
	}
	return []Rule{
		{Metric: MetricCPU, Operator: ">=", Threshold: pick(th.CPU, 85), Level: models.AlertWarning, Format: "High CPU: %s%%"},
		{Metric: MetricRAM, Operator: ">=", Threshold: pick(th.RAM, 90), Level: models.AlertWarning, Format: "High RAM: %s%%"},
		{Metric: MetricDisk, Operator: ">=", Threshold: pick(th.Disk, 90), Level: models.AlertCritical, Format: "Disk nearly full: %s%%"},
	}
}

// Engine evaluates a fixed rule set against single samples. It keeps no
// state between calls, so the same sample always yields the same alerts.
type Engine struct {
	rules []Rule
}

func NewEngine(rules []Rule) *Engine {
	if len(rules) == 0 {
		rules = DefaultRules(Thresholds{})
	}
	return &Engine{rules: rules}
}

func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate returns one alert per matching rule, in rule order, stamped with at.
func (e *Engine) Evaluate(sample models.MetricSample, at time.Time) []models.Alert {
	var out []models.Alert
	for _, r := range e.rules {
		v, ok := value(sample, r.Metric)
		if !ok || !compare(v, r.Operator, r.Threshold) {
			continue
		}
		out = append(out, models.Alert{
			ServerID:  sample.ServerID,
			Timestamp: at.UTC(),
			Level:     r.Level,
			Message:   fmt.Sprintf(r.Format, FormatValue(v)),
		})
	}
	return out
}

func value(s models.MetricSample, metric string) (float64, bool) {
	switch metric {
	case MetricCPU:
		return s.CPUPercent, true
	case MetricRAM:
		return s.RAMPercent, true
	case MetricDisk:
		return s.DiskPercent, true
	default:
		return 0, false
	}
}

func compare(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	default:
		return false
	}
}

// FormatValue renders v in its shortest form: 85 -> "85", 85.5 -> "85.5".
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
