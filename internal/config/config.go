package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// ModelDef points at one trained model and the strategy that loads it.
type ModelDef struct {
	Type string `yaml:"type"` // registered scorer type, e.g. "forest" or "onnx"
	Path string `yaml:"path"`
}

// Configured reports whether the model was set in the config file.
func (d ModelDef) Configured() bool {
	return d.Type != "" && d.Path != ""
}

// ModelsConfig describes the artifact bundle produced by the offline training job.
type ModelsConfig struct {
	RootPath        string   `yaml:"root_path"`
	FeatureNames    string   `yaml:"feature_names"`
	Scaler          string   `yaml:"scaler"`
	LabelEncoder    string   `yaml:"label_encoder"`
	Calibration     string   `yaml:"calibration"`
	Classifier      ModelDef `yaml:"classifier"`
	Anomaly         ModelDef `yaml:"anomaly"`
	ONNXLibraryPath string   `yaml:"onnx_library_path"`
	// RequireAll refuses to start in a degraded (single-model) mode.
	RequireAll bool `yaml:"require_all"`
}

// FeaturesConfig tunes the feature vector builder.
type FeaturesConfig struct {
	MissingDefault float64 `yaml:"missing_default"`
	ScaleFloor     float64 `yaml:"scale_floor"`
}

// Weights are the fusion weights of the risk score.
type Weights struct {
	Confidence float64 `yaml:"confidence"`
	Anomaly    float64 `yaml:"anomaly"`
}

// RiskBands are the lower bounds of the Medium, High and Critical levels.
type RiskBands struct {
	Medium   float64 `yaml:"medium"`
	High     float64 `yaml:"high"`
	Critical float64 `yaml:"critical"`
}

// DecisionConfig holds every constant the hybrid decision engine uses.
type DecisionConfig struct {
	BenignLabels     []string  `yaml:"benign_labels"`
	BenignLabel      string    `yaml:"benign_label"`
	AnomalyLabel     string    `yaml:"anomaly_label"`
	UnknownLabel     string    `yaml:"unknown_label"`
	MinConfidence    float64   `yaml:"min_confidence"`
	AnomalyThreshold float64   `yaml:"anomaly_threshold"`
	Weights          Weights   `yaml:"weights"`
	RiskBands        RiskBands `yaml:"risk_bands"`
}

// IngestConfig controls how upstream flow exports are read.
type IngestConfig struct {
	DurationUnit     string `yaml:"duration_unit"` // "microseconds", "milliseconds" or "seconds"
	CICFlowMeterPath string `yaml:"cicflowmeter_path"`
	TempDir          string `yaml:"temp_dir"`
	// PCAPExtractor selects "cicflowmeter" or the built-in "packet" extractor.
	PCAPExtractor string `yaml:"pcap_extractor"`
}

// OrchestratorConfig sizes the per-batch worker pool.
type OrchestratorConfig struct {
	NumWorkers int `yaml:"num_workers"`
}

// ClickHouseConfig holds the connection settings for ClickHouse.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// SQLConfig holds the settings of the sqlite and postgres writers.
type SQLConfig struct {
	DSN string `yaml:"dsn"`
}

// FileConfig holds the settings of the file writer.
type FileConfig struct {
	RootPath string `yaml:"root_path"`
}

// NATSWriterConfig holds the settings of the verdict publisher.
type NATSWriterConfig struct {
	URL          string `yaml:"url"`
	Subject      string `yaml:"subject"`
	MinRiskLevel string `yaml:"min_risk_level"`
}

// WriterDef defines a single sink from the config file.
type WriterDef struct {
	Type       string           `yaml:"type"`
	Enabled    bool             `yaml:"enabled"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	SQL        SQLConfig        `yaml:"sql"`
	File       FileConfig       `yaml:"file"`
	NATS       NATSWriterConfig `yaml:"nats"`
}

// ProbeConfig holds the NATS settings for flow batch ingest.
type ProbeConfig struct {
	NATSURL   string `yaml:"nats_url"`
	Subject   string `yaml:"subject"`
	BatchSize int    `yaml:"batch_size"`
}

// APIConfig holds the listen addresses of the ops servers.
type APIConfig struct {
	HTTPListenAddr string `yaml:"http_listen_addr"`
	GRPCListenAddr string `yaml:"grpc_listen_addr"`
}

// AlerterRule is a single threshold rule evaluated against each batch summary.
type AlerterRule struct {
	Name      string  `yaml:"name"`
	Metric    string  `yaml:"metric"`
	Operator  string  `yaml:"operator"`
	Threshold float64 `yaml:"threshold"`
}

// AIAnalysisConfig enables an LLM write-up appended to alert notifications.
type AIAnalysisConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// AlerterConfig holds the alerting rules.
type AlerterConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Rules      []AlerterRule    `yaml:"rules"`
	AIAnalysis AIAnalysisConfig `yaml:"ai_analysis"`
}

// SMTPConfig holds the email notifier settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// TelegramConfig holds the Telegram notifier settings.
type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Log          LogConfig          `yaml:"log"`
	Models       ModelsConfig       `yaml:"models"`
	Features     FeaturesConfig     `yaml:"features"`
	Decision     DecisionConfig     `yaml:"decision"`
	Ingest       IngestConfig       `yaml:"ingest"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Writers      []WriterDef        `yaml:"writers"`
	Probe        ProbeConfig        `yaml:"probe"`
	API          APIConfig          `yaml:"api"`
	Alerter      AlerterConfig      `yaml:"alerter"`
	SMTP         SMTPConfig         `yaml:"smtp"`
	Telegram     TelegramConfig     `yaml:"telegram"`
}

// DefaultDecisionConfig returns the fusion defaults: 0.6/0.4 weights,
// 0.6 minimum confidence, 0.8 anomaly threshold and 0.25/0.5/0.75 risk bands.
func DefaultDecisionConfig() DecisionConfig {
	return DecisionConfig{
		BenignLabels:     []string{"BENIGN", "Benign"},
		BenignLabel:      "Benign",
		AnomalyLabel:     "Anomaly",
		UnknownLabel:     "Unknown",
		MinConfidence:    0.6,
		AnomalyThreshold: 0.8,
		Weights:          Weights{Confidence: 0.6, Anomaly: 0.4},
		RiskBands:        RiskBands{Medium: 0.25, High: 0.5, Critical: 0.75},
	}
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{Decision: DefaultDecisionConfig()}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads the configuration from a YAML file and returns a validated Config struct.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	// Decision defaults are seeded before unmarshalling so that a partial
	// decision section only overrides the keys it names.
	cfg.Decision = DefaultDecisionConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	if c.Models.RootPath == "" {
		c.Models.RootPath = "models"
	}
	if c.Models.FeatureNames == "" {
		c.Models.FeatureNames = "artifacts/feature_names.json"
	}
	if c.Models.Scaler == "" {
		c.Models.Scaler = "artifacts/scaler.json"
	}
	if c.Models.LabelEncoder == "" {
		c.Models.LabelEncoder = "artifacts/label_encoder.json"
	}
	if c.Models.Calibration == "" {
		c.Models.Calibration = "artifacts/anomaly_calibration.json"
	}

	if c.Features.ScaleFloor <= 0 {
		c.Features.ScaleFloor = 1e-12
	}

	d := DefaultDecisionConfig()
	if len(c.Decision.BenignLabels) == 0 {
		c.Decision.BenignLabels = d.BenignLabels
	}
	if c.Decision.BenignLabel == "" {
		c.Decision.BenignLabel = d.BenignLabel
	}
	if c.Decision.AnomalyLabel == "" {
		c.Decision.AnomalyLabel = d.AnomalyLabel
	}
	if c.Decision.UnknownLabel == "" {
		c.Decision.UnknownLabel = d.UnknownLabel
	}
	if c.Decision.Weights == (Weights{}) {
		c.Decision.Weights = d.Weights
	}
	if c.Decision.RiskBands == (RiskBands{}) {
		c.Decision.RiskBands = d.RiskBands
	}

	if c.Ingest.DurationUnit == "" {
		c.Ingest.DurationUnit = "microseconds"
	}
	if c.Ingest.CICFlowMeterPath == "" {
		c.Ingest.CICFlowMeterPath = "cicflowmeter"
	}
	if c.Ingest.TempDir == "" {
		c.Ingest.TempDir = os.TempDir()
	}
	if c.Ingest.PCAPExtractor == "" {
		c.Ingest.PCAPExtractor = "cicflowmeter"
	}

	if c.Orchestrator.NumWorkers <= 0 {
		c.Orchestrator.NumWorkers = 4
	}

	if c.Probe.Subject == "" {
		c.Probe.Subject = "netverdict.flows"
	}
	if c.Probe.BatchSize <= 0 {
		c.Probe.BatchSize = 500
	}

	if c.API.HTTPListenAddr == "" {
		c.API.HTTPListenAddr = ":8080"
	}
	if c.API.GRPCListenAddr == "" {
		c.API.GRPCListenAddr = ":9090"
	}
}

// Validate checks the fields that would otherwise fail later at run time.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Decision.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("decision: %w", err))
	}
	switch c.Ingest.DurationUnit {
	case "microseconds", "milliseconds", "seconds":
	default:
		errs = append(errs, fmt.Errorf("ingest: unknown duration_unit %q", c.Ingest.DurationUnit))
	}
	switch c.Ingest.PCAPExtractor {
	case "cicflowmeter", "packet":
	default:
		errs = append(errs, fmt.Errorf("ingest: unknown pcap_extractor %q", c.Ingest.PCAPExtractor))
	}
	if !c.Models.Classifier.Configured() && !c.Models.Anomaly.Configured() {
		errs = append(errs, errors.New("models: at least one of classifier or anomaly must be configured"))
	}
	for _, rule := range c.Alerter.Rules {
		switch rule.Operator {
		case ">", "<", "=", ">=", "<=":
		default:
			errs = append(errs, fmt.Errorf("alerter: rule %q has unknown operator %q", rule.Name, rule.Operator))
		}
	}
	return errors.Join(errs...)
}

// weightTolerance absorbs decimal rounding in YAML weights such as 0.7 + 0.3.
const weightTolerance = 1e-9

// Validate checks ranges, that the weights sum to one and that the risk bands
// are strictly increasing, which keeps the level ladder monotonic and gap-free.
func (d DecisionConfig) Validate() error {
	var errs []error
	if !inUnit(d.MinConfidence) {
		errs = append(errs, fmt.Errorf("min_confidence %v outside [0,1]", d.MinConfidence))
	}
	if !inUnit(d.AnomalyThreshold) {
		errs = append(errs, fmt.Errorf("anomaly_threshold %v outside [0,1]", d.AnomalyThreshold))
	}
	if !inUnit(d.Weights.Confidence) || !inUnit(d.Weights.Anomaly) {
		errs = append(errs, fmt.Errorf("weights %+v outside [0,1]", d.Weights))
	}
	if math.Abs(d.Weights.Confidence+d.Weights.Anomaly-1) > weightTolerance {
		errs = append(errs, fmt.Errorf("weights must sum to 1, got %v", d.Weights.Confidence+d.Weights.Anomaly))
	}
	b := d.RiskBands
	if !(0 < b.Medium && b.Medium < b.High && b.High < b.Critical && b.Critical <= 1) {
		errs = append(errs, fmt.Errorf("risk_bands must satisfy 0 < medium < high < critical <= 1, got %+v", b))
	}
	if d.AnomalyLabel == "" || d.BenignLabel == "" || d.UnknownLabel == "" {
		errs = append(errs, errors.New("benign_label, anomaly_label and unknown_label must be set"))
	}
	return errors.Join(errs...)
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}
