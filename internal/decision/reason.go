package decision

import (
	"NetVerdict/internal/model"
	"fmt"
	"strings"
)

type driver int

const (
	driverClassifier driver = iota // recognised attack above min confidence
	driverAnomaly                  // anomaly override
	driverWeak                     // neither signal strong enough
)

type facts struct {
	cls       *model.ClassifierOutput
	anom      *model.AnomalyOutput
	score     float64
	isAnomaly bool
	driver    driver
}

func pct(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}

func (e *Engine) reason(f facts, v model.Verdict) string {
	var b strings.Builder
	switch f.driver {
	case driverClassifier:
		fmt.Fprintf(&b, "classified as %s with %s confidence", v.FinalClassification, pct(v.Confidence))
		if f.isAnomaly {
			fmt.Fprintf(&b, ", anomaly detector agrees (score %s)", pct(f.score))
		}
	case driverAnomaly:
		fmt.Fprintf(&b, "flagged by anomaly detector (score %s), no matching known attack pattern", pct(f.score))
		if f.cls != nil && !e.IsBenign(f.cls.Label) {
			fmt.Fprintf(&b, "; classifier suggested %s at %s", f.cls.Label, pct(f.cls.Confidence))
		}
	default:
		switch {
		case f.cls == nil:
			fmt.Fprintf(&b, "anomaly score %s within threshold %s, treated as benign", pct(f.score), pct(e.cfg.AnomalyThreshold))
		case f.cls.Label == "":
			b.WriteString("classifier returned no label")
		case e.IsBenign(f.cls.Label):
			fmt.Fprintf(&b, "classified as %s with %s confidence", f.cls.Label, pct(f.cls.Confidence))
			if f.anom != nil {
				fmt.Fprintf(&b, ", anomaly score %s within threshold", pct(f.score))
			}
		default:
			fmt.Fprintf(&b, "low confidence from both detectors: %s at %s below %s minimum",
				f.cls.Label, pct(f.cls.Confidence), pct(e.cfg.MinConfidence))
			if f.anom != nil {
				fmt.Fprintf(&b, ", anomaly score %s", pct(f.score))
			}
		}
	}

	switch {
	case f.anom == nil:
		b.WriteString("; anomaly detector unavailable")
	case f.cls == nil:
		b.WriteString("; classifier unavailable")
	}
	fmt.Fprintf(&b, " (risk %s)", v.RiskLevel)
	return b.String()
}
