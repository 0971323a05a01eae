package model

// ClassifierOutput is the supervised classifier's prediction for one flow.
type ClassifierOutput struct {
	Label         string
	Labels        []string  // training-time label order
	Probabilities []float64 // aligned with Labels, sums to 1
	Confidence    float64   // probability of Label
}

// AnomalyOutput is the anomaly detector's normalized score for one flow.
type AnomalyOutput struct {
	Score float64 // [0,1], higher is more anomalous
	Raw   float64 // detector decision value before normalization
}

// RiskLevel is the discrete severity band of a risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskMedium   RiskLevel = "Medium"
	RiskHigh     RiskLevel = "High"
	RiskCritical RiskLevel = "Critical"
)

// RiskLevels lists the bands in ascending severity.
var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}

// Rank returns the position of the level in RiskLevels, or -1.
func (l RiskLevel) Rank() int {
	for i, lvl := range RiskLevels {
		if lvl == l {
			return i
		}
	}
	return -1
}

// Verdict is the fused, authoritative result for one flow.
type Verdict struct {
	FinalClassification string    `json:"final_classification"`
	Confidence          float64   `json:"confidence"`
	IsAnomaly           bool      `json:"is_anomaly"`
	AnomalyScore        float64   `json:"anomaly_score"`
	RiskScore           float64   `json:"risk_score"`
	RiskLevel           RiskLevel `json:"risk_level"`
	Reason              string    `json:"reason"`
}

// ThreatInfo describes a classification label for operators.
type ThreatInfo struct {
	ThreatType  string   `json:"threat_type"`
	CVERefs     []string `json:"cve_refs"`
	Description string   `json:"description"`
}

// EnrichedFlow pairs a flow with its verdict and the context attached to it.
type EnrichedFlow struct {
	Record  RawFlowRecord `json:"record"`
	Verdict Verdict       `json:"verdict"`
	Threat  ThreatInfo    `json:"threat"`
	// SuspectedThreat is the behavioural guess for flows labelled as anomalies.
	SuspectedThreat string   `json:"suspected_threat,omitempty"`
	MissingFeatures []string `json:"missing_features,omitempty"`
}

// FailureKind classifies why a flow produced no verdict.
type FailureKind string

const (
	FailureFeature   FailureKind = "feature"
	FailureDecision  FailureKind = "decision"
	FailureCancelled FailureKind = "cancelled"
)

// FlowFailure records a flow excluded from a batch's aggregates.
type FlowFailure struct {
	Index    int         `json:"index"`
	RecordID string      `json:"record_id"`
	Kind     FailureKind `json:"kind"`
	Reason   string      `json:"reason"`
}
