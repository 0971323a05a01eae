// Package decision fuses classifier and anomaly detector outputs into a
// single verdict. Engine is a pure function of its inputs and config.
package decision

import (
	"NetVerdict/internal/config"
	"NetVerdict/internal/model"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrNoSignal is returned when neither scorer produced an output for a flow.
var ErrNoSignal = errors.New("no signal: classifier and anomaly outputs both absent")

// Engine holds the validated fusion constants. It is safe for concurrent use.
type Engine struct {
	cfg    config.DecisionConfig
	benign map[string]bool
}

// New returns an Engine for cfg, which must pass validation.
func New(cfg config.DecisionConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid decision config: %w", err)
	}
	cfg.BenignLabels = append([]string(nil), cfg.BenignLabels...)
	e := &Engine{cfg: cfg, benign: make(map[string]bool, len(cfg.BenignLabels)+1)}
	for _, l := range cfg.BenignLabels {
		e.benign[strings.ToLower(l)] = true
	}
	e.benign[strings.ToLower(cfg.BenignLabel)] = true
	return e, nil
}

// Config returns the constants the engine was built with.
func (e *Engine) Config() config.DecisionConfig {
	return e.cfg
}

// IsBenign reports whether label names background traffic.
func (e *Engine) IsBenign(label string) bool {
	return e.benign[strings.ToLower(strings.TrimSpace(label))]
}

// Level maps a risk score onto the band ladder. Each band includes its lower
// bound, so the ladder is monotonic and covers [0,1] without gaps.
func (e *Engine) Level(risk float64) model.RiskLevel {
	b := e.cfg.RiskBands
	switch {
	case risk < b.Medium:
		return model.RiskLow
	case risk < b.High:
		return model.RiskMedium
	case risk < b.Critical:
		return model.RiskHigh
	default:
		return model.RiskCritical
	}
}

// Decide fuses the two outputs; either may be nil but not both.
func (e *Engine) Decide(cls *model.ClassifierOutput, anom *model.AnomalyOutput) (model.Verdict, error) {
	if cls == nil && anom == nil {
		return model.Verdict{}, ErrNoSignal
	}

	var score float64
	if anom != nil {
		score = clamp01(anom.Score)
	}
	isAnomaly := anom != nil && score > e.cfg.AnomalyThreshold

	var (
		suspicion float64
		knownHit  bool
	)
	if cls != nil && cls.Label != "" && !e.IsBenign(cls.Label) {
		suspicion = clamp01(cls.Confidence)
		knownHit = suspicion >= e.cfg.MinConfidence
	}

	f := facts{cls: cls, anom: anom, score: score, isAnomaly: isAnomaly}
	var v model.Verdict
	switch {
	case knownHit:
		f.driver = driverClassifier
		v.FinalClassification = cls.Label
		v.Confidence = suspicion
	case isAnomaly:
		f.driver = driverAnomaly
		v.FinalClassification = e.cfg.AnomalyLabel
		v.Confidence = score
	case cls != nil && cls.Label != "":
		f.driver = driverWeak
		v.FinalClassification = cls.Label
		v.Confidence = clamp01(cls.Confidence)
	case cls == nil:
		f.driver = driverWeak
		v.FinalClassification = e.cfg.BenignLabel
		v.Confidence = 1 - score
	default:
		f.driver = driverWeak
		v.FinalClassification = e.cfg.UnknownLabel
		v.Confidence = 0
	}

	risk := e.cfg.Weights.Confidence * suspicion
	if anom != nil {
		risk += e.cfg.Weights.Anomaly * score
	}
	v.RiskScore = clamp01(risk)
	v.RiskLevel = e.Level(v.RiskScore)
	v.IsAnomaly = isAnomaly
	v.AnomalyScore = score
	v.Reason = e.reason(f, v)
	return v, nil
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}
