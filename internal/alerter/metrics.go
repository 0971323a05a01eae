package alerter

import (
	"NetVerdict/internal/model"
	"strings"
)

// Rule metrics. "attack:<label>" counts flows with that final classification.
const (
	MetricCriticalFlows = "critical_flows"
	MetricHighRiskFlows = "high_risk_flows"
	MetricAnomalyRate   = "anomaly_rate"
	MetricAvgRiskScore  = "avg_risk_score"
	MetricFailedFlows   = "failed_flows"
	MetricTotalFlows    = "total_flows"
	attackPrefix        = "attack:"
)

func knownMetric(m string) bool {
	switch m {
	case MetricCriticalFlows, MetricHighRiskFlows, MetricAnomalyRate, MetricAvgRiskScore,
		MetricFailedFlows, MetricTotalFlows:
		return true
	}
	return strings.HasPrefix(m, attackPrefix) && len(m) > len(attackPrefix)
}

func metricValue(metric string, result *model.BatchResult) float64 {
	s := result.Summary
	switch metric {
	case MetricCriticalFlows:
		return float64(s.ByRiskLevel[model.RiskCritical])
	case MetricHighRiskFlows:
		return float64(s.ByRiskLevel[model.RiskHigh] + s.ByRiskLevel[model.RiskCritical])
	case MetricAnomalyRate:
		return s.AnomalyRate()
	case MetricAvgRiskScore:
		return s.AvgRiskScore()
	case MetricFailedFlows:
		return float64(result.Failed())
	case MetricTotalFlows:
		return float64(s.TotalFlows)
	}
	if label, ok := strings.CutPrefix(metric, attackPrefix); ok {
		return float64(s.ByClassification[label])
	}
	return 0
}

// check compares a value against a threshold based on an operator.
func check(value, threshold float64, operator string) bool {
	switch operator {
	case ">":
		return value > threshold
	case "<":
		return value < threshold
	case "=":
		return value == threshold
	case ">=":
		return value >= threshold
	case "<=":
		return value <= threshold
	default:
		return false
	}
}
