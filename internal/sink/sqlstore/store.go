// Package sqlstore persists batches to SQLite or PostgreSQL and serves
// paginated flow queries.
package sqlstore

import (
	"NetVerdict/internal/config"
	"NetVerdict/internal/factory"
	"NetVerdict/internal/model"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed migrations
var migrations embed.FS

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
	for _, driver := range []string{"sqlite", "postgres"} {
		factory.RegisterWriter(driver, func(def config.WriterDef, _ *config.Config, logger *zap.Logger) (model.Writer, error) {
			return Open(driver, def.SQL.DSN, logger)
		})
	}
}

// Store implements model.Writer on top of a SQL database.
type Store struct {
	db     *sqlx.DB
	driver string
	logger *zap.Logger
}

// Open connects to the database and applies pending migrations.
func Open(driver, dsn string, logger *zap.Logger) (*Store, error) {
	if driver != "sqlite" && driver != "postgres" {
		return nil, fmt.Errorf("unsupported sql driver: '%s'", driver)
	}
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// A single writer avoids SQLITE_BUSY between pooled connections.
		db.SetMaxOpenConns(1)
	}
	s := &Store{db: db, driver: driver, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("connected to database and applied migrations", zap.String("driver", driver))
	return s, nil
}

func (s *Store) migrate() error {
	src, err := iofs.New(migrations, "migrations/"+s.driver)
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}
	var drv database.Driver
	switch s.driver {
	case "sqlite":
		drv, err = sqlite.WithInstance(s.db.DB, &sqlite.Config{})
	default:
		drv, err = postgres.WithInstance(s.db.DB, &postgres.Config{})
	}
	if err != nil {
		return fmt.Errorf("couldn't get database instance for migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, s.driver, drv)
	if err != nil {
		return fmt.Errorf("couldn't create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("couldn't run database migration: %w", err)
	}
	return nil
}

const insertFlow = `INSERT INTO flows (
	analysis_id, flow_seq, id, source, timestamp, src_ip, dst_ip, src_port, dst_port, protocol,
	duration, total_fwd_packets, total_bwd_packets, total_length_fwd, total_length_bwd,
	flow_bytes_per_sec, flow_packets_per_sec, classification, threat_type, cve_refs,
	suspected_threat, classification_reason, confidence, anomaly_score, risk_score, risk_level, is_anomaly
) VALUES (
	:analysis_id, :flow_seq, :id, :source, :timestamp, :src_ip, :dst_ip, :src_port, :dst_port, :protocol,
	:duration, :total_fwd_packets, :total_bwd_packets, :total_length_fwd, :total_length_bwd,
	:flow_bytes_per_sec, :flow_packets_per_sec, :classification, :threat_type, :cve_refs,
	:suspected_threat, :classification_reason, :confidence, :anomaly_score, :risk_score, :risk_level, :is_anomaly
)`

const insertSummary = `INSERT INTO batch_summaries (
	analysis_id, source, started_at, finished_at, succeeded, failed, anomaly_count,
	anomaly_rate, avg_risk_score, avg_confidence, attack_distribution, risk_distribution
) VALUES (
	:analysis_id, :source, :started_at, :finished_at, :succeeded, :failed, :anomaly_count,
	:anomaly_rate, :avg_risk_score, :avg_confidence, :attack_distribution, :risk_distribution
)`

const insertFailure = `INSERT INTO flow_failures (analysis_id, flow_index, record_id, kind, reason)
VALUES (:analysis_id, :flow_index, :record_id, :kind, :reason)`

// Write stores the whole batch in one transaction.
func (s *Store) Write(ctx context.Context, result *model.BatchResult) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range result.Flows {
		if _, err := tx.NamedExecContext(ctx, insertFlow, newFlowRow(result, i)); err != nil {
			return fmt.Errorf("failed to insert flow %s: %w", result.Flows[i].Record.ID, err)
		}
	}
	summary, err := newSummaryRow(result)
	if err != nil {
		return err
	}
	if _, err := tx.NamedExecContext(ctx, insertSummary, summary); err != nil {
		return fmt.Errorf("failed to insert batch summary: %w", err)
	}
	for _, f := range result.Failures {
		row := failureRow{AnalysisID: result.ID, FlowIndex: f.Index, RecordID: f.RecordID, Kind: string(f.Kind), Reason: f.Reason}
		if _, err := tx.NamedExecContext(ctx, insertFailure, row); err != nil {
			return fmt.Errorf("failed to insert flow failure: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch %s: %w", result.ID, err)
	}
	s.logger.Info("wrote batch to database", zap.String("batch_id", result.ID),
		zap.Int("flows", len(result.Flows)), zap.Int("failures", len(result.Failures)))
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// FlowFilter narrows ListFlows. Empty fields match everything; matching is
// case-insensitive and SrcIP matches substrings.
type FlowFilter struct {
	Classification string
	RiskLevel      string
	ThreatType     string
	SrcIP          string
	Protocol       string
	AnalysisID     string
}

// protocolValues lets a protocol filter match both numbers and names.
var protocolValues = map[string][]string{
	"TCP":  {"6", "TCP"},
	"UDP":  {"17", "UDP"},
	"ICMP": {"1", "ICMP"},
	"GRE":  {"47", "GRE"},
	"ESP":  {"50", "ESP"},
	"AH":   {"51", "AH"},
	"OSPF": {"89", "OSPF"},
	"SCTP": {"132", "SCTP"},
}

func (f FlowFilter) where() (string, []any) {
	var clauses []string
	var args []any
	eq := func(col, val string) {
		if val = strings.TrimSpace(val); val != "" {
			clauses = append(clauses, fmt.Sprintf("LOWER(COALESCE(%s, '')) = LOWER(?)", col))
			args = append(args, val)
		}
	}
	eq("classification", f.Classification)
	eq("risk_level", f.RiskLevel)
	eq("threat_type", f.ThreatType)
	eq("analysis_id", f.AnalysisID)
	if ip := strings.TrimSpace(f.SrcIP); ip != "" {
		clauses = append(clauses, "LOWER(COALESCE(src_ip, '')) LIKE LOWER(?)")
		args = append(args, "%"+ip+"%")
	}
	if p := strings.TrimSpace(f.Protocol); p != "" {
		if vals, ok := protocolValues[strings.ToUpper(p)]; ok {
			clauses = append(clauses, "COALESCE(protocol, '') IN (?, ?)")
			args = append(args, vals[0], vals[1])
		} else {
			eq("protocol", p)
		}
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// MaxPerPage caps the page size of ListFlows.
const MaxPerPage = 1000

// ListFlows returns one page of stored flows, newest first, and the total
// number of matching flows.
func (s *Store) ListFlows(ctx context.Context, filter FlowFilter, page, perPage int) ([]FlowRow, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > MaxPerPage {
		perPage = 20
	}
	where, args := filter.where()

	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind("SELECT COUNT(*) FROM flows"+where), args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count flows: %w", err)
	}
	query := s.db.Rebind("SELECT " + flowColumns + " FROM flows" + where +
		" ORDER BY timestamp DESC, analysis_id, flow_seq LIMIT ? OFFSET ?")
	rows := []FlowRow{}
	if err := s.db.SelectContext(ctx, &rows, query, append(args, perPage, (page-1)*perPage)...); err != nil {
		return nil, 0, fmt.Errorf("failed to list flows: %w", err)
	}
	return rows, total, nil
}

// Summary returns the stored report of one batch.
func (s *Store) Summary(ctx context.Context, batchID string) (*model.Report, error) {
	var row summaryRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind("SELECT * FROM batch_summaries WHERE analysis_id = ?"), batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch %s: %w", batchID, err)
	}
	rep := &model.Report{
		ID:             row.AnalysisID,
		Source:         row.Source.String,
		SucceededCount: row.Succeeded,
		FailedCount:    row.Failed,
		TotalFlows:     row.Succeeded + row.Failed,
		AnomalyCount:   row.AnomalyCount,
		AnomalyRate:    row.AnomalyRate,
		AvgRiskScore:   row.AvgRiskScore,
		AvgConfidence:  row.AvgConfidence,
	}
	if err := json.Unmarshal([]byte(row.AttackDistribution.String), &rep.AttackDistribution); err != nil {
		return nil, fmt.Errorf("corrupt attack distribution for batch %s: %w", batchID, err)
	}
	if err := json.Unmarshal([]byte(row.RiskDistribution.String), &rep.RiskDistribution); err != nil {
		return nil, fmt.Errorf("corrupt risk distribution for batch %s: %w", batchID, err)
	}
	var failures []failureRow
	err = s.db.SelectContext(ctx, &failures, s.db.Rebind(
		"SELECT analysis_id, flow_index, COALESCE(record_id, '') AS record_id, kind, COALESCE(reason, '') AS reason FROM flow_failures WHERE analysis_id = ? ORDER BY flow_index"), batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load failures of batch %s: %w", batchID, err)
	}
	rep.Failures = make([]model.FlowFailure, len(failures))
	for i, f := range failures {
		rep.Failures[i] = model.FlowFailure{Index: f.FlowIndex, RecordID: f.RecordID, Kind: model.FailureKind(f.Kind), Reason: f.Reason}
	}
	return rep, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
