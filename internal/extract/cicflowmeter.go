package extract

import (
	"NetVerdict/internal/ingest"
	"NetVerdict/internal/model"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// CICFlowMeter runs the external cicflowmeter tool and parses its CSV.
type CICFlowMeter struct {
	Path    string // binary, "cicflowmeter" when empty
	TempDir string
	Logger  *zap.Logger
}

// Extract runs `cicflowmeter -f <pcap> -c <csv>` and reads the flows back.
func (c *CICFlowMeter) Extract(ctx context.Context, pcapPath string) ([]model.RawFlowRecord, error) {
	bin := c.Path
	if bin == "" {
		bin = "cicflowmeter"
	}
	if _, err := os.Stat(pcapPath); err != nil {
		return nil, fmt.Errorf("capture not readable: %w", err)
	}

	dir, err := os.MkdirTemp(c.TempDir, "cicflowmeter-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)
	out := filepath.Join(dir, "flows.csv")

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "-f", pcapPath, "-c", out)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("cicflowmeter failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	recs, err := ingest.ReadCSVFile(out, ingest.Options{DurationUnit: "microseconds"})
	if err != nil {
		return nil, fmt.Errorf("failed to read cicflowmeter output: %w", err)
	}
	if c.Logger != nil {
		c.Logger.Info("flows extracted", zap.String("tool", bin), zap.String("pcap", pcapPath), zap.Int("flows", len(recs)))
	}
	return recs, nil
}
