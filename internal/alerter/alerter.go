// Package alerter evaluates alert rules against every finished batch and
// notifies when any rule fires.
package alerter

import (
	"NetVerdict/internal/ai"
	"NetVerdict/internal/config"
	"NetVerdict/internal/factory"
	"NetVerdict/internal/model"
	"NetVerdict/internal/notification"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// topFlows is how many of the riskiest flows an alert lists.
const topFlows = 5

func init() {
	factory.RegisterWriter("alerter", func(_ config.WriterDef, cfg *config.Config, logger *zap.Logger) (model.Writer, error) {
		notifier, err := notification.FromConfig(cfg, logger)
		if err != nil {
			return nil, err
		}
		var analyzer model.Analyzer
		if cfg.Alerter.AIAnalysis.Enabled {
			a, err := ai.NewAlertAnalyzer(cfg.Alerter.AIAnalysis)
			if err != nil {
				return nil, err
			}
			analyzer = a
			logger.Info("AI analysis of alerts is enabled", zap.String("model", cfg.Alerter.AIAnalysis.Model))
		}
		return New(cfg.Alerter.Rules, notifier, analyzer, logger)
	})
}

// Alerter implements model.Writer. It never persists anything.
type Alerter struct {
	rules    []config.AlerterRule
	notifier model.Notifier
	analyzer model.Analyzer
	logger   *zap.Logger
}

// New validates the rules. notifier and analyzer may be nil.
func New(rules []config.AlerterRule, notifier model.Notifier, analyzer model.Analyzer, logger *zap.Logger) (*Alerter, error) {
	for _, r := range rules {
		if !knownMetric(r.Metric) {
			return nil, fmt.Errorf("alerter rule %q uses unknown metric %q", r.Name, r.Metric)
		}
	}
	if notifier == nil {
		logger.Warn("alerter has no notifier configured, alerts will only be logged")
	}
	return &Alerter{rules: rules, notifier: notifier, analyzer: analyzer, logger: logger}, nil
}

// Triggered is a rule that fired and the value it saw.
type Triggered struct {
	Rule  config.AlerterRule
	Value float64
}

// Evaluate returns the rules that fire for the batch.
func (a *Alerter) Evaluate(result *model.BatchResult) []Triggered {
	var fired []Triggered
	for _, r := range a.rules {
		v := metricValue(r.Metric, result)
		if check(v, r.Threshold, r.Operator) {
			fired = append(fired, Triggered{Rule: r, Value: v})
		}
	}
	return fired
}

// Write evaluates the batch and sends one consolidated notification when
// rules fire. Delivery failures are logged and do not fail the batch.
func (a *Alerter) Write(ctx context.Context, result *model.BatchResult) error {
	fired := a.Evaluate(result)
	if len(fired) == 0 {
		return nil
	}
	a.logger.Warn("alert rules triggered",
		zap.String("batch_id", result.ID), zap.Int("count", len(fired)))

	body := Render(result, fired)
	if a.analyzer != nil {
		actx, cancel := context.WithTimeout(ctx, 60*time.Second)
		analysis, err := a.analyzer.Analyze(actx, body)
		cancel()
		if err != nil {
			a.logger.Warn("failed to get AI analysis", zap.Error(err))
		} else if analysis != "" {
			body += "\n---\n\n## AI-Powered Analysis\n\n" + analysis + "\n"
		}
	}

	if a.notifier == nil {
		return nil
	}
	subject := fmt.Sprintf("NetVerdict Alert: batch %s (%d triggered)", result.ID, len(fired))
	if err := a.notifier.Send(subject, body); err != nil {
		a.logger.Error("failed to send alert notification", zap.Error(err))
		return nil
	}
	a.logger.Info("alert notification sent", zap.String("batch_id", result.ID))
	return nil
}

// Close is a no-op.
func (a *Alerter) Close() error {
	return nil
}

// Render formats the alert as Markdown.
func Render(result *model.BatchResult, fired []Triggered) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# NetVerdict Alert Summary\n\n")
	fmt.Fprintf(&b, "Batch `%s` from `%s`: %d flows classified, %d failed.\n\n",
		result.ID, result.Source, result.Succeeded(), result.Failed())
	for _, t := range fired {
		fmt.Fprintf(&b, "## %s\n\n", t.Rule.Name)
		fmt.Fprintf(&b, "- **Metric:** `%s`\n", t.Rule.Metric)
		fmt.Fprintf(&b, "- **Condition:** `%s %.2f`\n", t.Rule.Operator, t.Rule.Threshold)
		fmt.Fprintf(&b, "- **Observed Value:** `%.2f`\n\n", t.Value)
	}

	top := riskiest(result.Flows, topFlows)
	if len(top) > 0 {
		b.WriteString("## Riskiest flows\n\n")
		b.WriteString("| Flow | Source | Destination | Classification | Risk | Reason |\n")
		b.WriteString("|---|---|---|---|---|---|\n")
		for _, f := range top {
			fmt.Fprintf(&b, "| %s | %s:%d | %s:%d | %s | %.2f (%s) | %s |\n",
				f.Record.ID, f.Record.SrcIP, f.Record.SrcPort, f.Record.DstIP, f.Record.DstPort,
				f.Verdict.FinalClassification, f.Verdict.RiskScore, f.Verdict.RiskLevel,
				strings.ReplaceAll(f.Verdict.Reason, "|", "/"))
		}
	}
	return b.String()
}

func riskiest(flows []model.EnrichedFlow, n int) []model.EnrichedFlow {
	var out []model.EnrichedFlow
	for _, f := range flows {
		if f.Verdict.RiskLevel.Rank() >= model.RiskHigh.Rank() {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Verdict.RiskScore > out[j].Verdict.RiskScore
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
