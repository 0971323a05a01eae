// Package ingest reads tabular flow exports (CICFlowMeter and CIC-IDS CSVs)
// into raw flow records.
package ingest

import (
	"NetVerdict/internal/model"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Options controls CSV decoding.
type Options struct {
	// DurationUnit of the "Flow Duration" column: microseconds (CICFlowMeter),
	// milliseconds or seconds.
	DurationUnit string
}

// column identifies a typed field of model.RawFlowRecord.
type column int

const (
	colExtra column = iota
	colID
	colTimestamp
	colSrcIP
	colDstIP
	colSrcPort
	colDstPort
	colProtocol
	colFlowDuration
	colDurationSeconds
	colFwdPackets
	colBwdPackets
	colFwdBytes
	colBwdBytes
	colBytesPerSec
	colPacketsPerSec
	colLabel
	colSkip
)

// aliases maps normalised header names onto typed columns.
var aliases = map[string]column{
	"flow id":                     colID,
	"id":                          colID,
	"timestamp":                   colTimestamp,
	"source ip":                   colSrcIP,
	"src ip":                      colSrcIP,
	"destination ip":              colDstIP,
	"dst ip":                      colDstIP,
	"source port":                 colSrcPort,
	"src port":                    colSrcPort,
	"destination port":            colDstPort,
	"dst port":                    colDstPort,
	"protocol":                    colProtocol,
	"flow duration":               colFlowDuration,
	"duration":                    colDurationSeconds,
	"total fwd packets":           colFwdPackets,
	"total fwd packet":            colFwdPackets,
	"tot fwd pkts":                colFwdPackets,
	"total backward packets":      colBwdPackets,
	"total bwd packets":           colBwdPackets,
	"tot bwd pkts":                colBwdPackets,
	"total length of fwd packets": colFwdBytes,
	"total length fwd":            colFwdBytes,
	"totlen fwd pkts":             colFwdBytes,
	"total length of bwd packets": colBwdBytes,
	"total length bwd":            colBwdBytes,
	"totlen bwd pkts":             colBwdBytes,
	"flow bytes/s":                colBytesPerSec,
	"flow byts/s":                 colBytesPerSec,
	"flow bytes per sec":          colBytesPerSec,
	"flow packets/s":              colPacketsPerSec,
	"flow pkts/s":                 colPacketsPerSec,
	"flow packets per sec":        colPacketsPerSec,
	"label":                       colLabel,
}

// identity columns never become model features.
var identity = map[column]bool{
	colID: true, colTimestamp: true, colSrcIP: true, colDstIP: true,
	colSrcPort: true, colDstPort: true, colProtocol: true, colLabel: true,
	colDurationSeconds: true,
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"02/01/2006 03:04:05 PM",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ReplaceAll(strings.ToLower(h), "_", " ")
	return strings.Join(strings.Fields(h), " ")
}

func durationScale(unit string) (float64, error) {
	switch unit {
	case "", "microseconds":
		return 1e-6, nil
	case "milliseconds":
		return 1e-3, nil
	case "seconds":
		return 1, nil
	}
	return 0, fmt.Errorf("unknown duration unit %q", unit)
}

// Decoder streams records out of a flow CSV.
type Decoder struct {
	r       *csv.Reader
	headers []string
	cols    []column
	scale   float64
	line    int
}

// NewDecoder reads the header row of r.
func NewDecoder(r io.Reader, opts Options) (*Decoder, error) {
	scale, err := durationScale(opts.DurationUnit)
	if err != nil {
		return nil, err
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	d := &Decoder{r: cr, scale: scale, line: 1}
	seen := make(map[string]bool, len(header))
	for _, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		col, ok := aliases[normalizeHeader(name)]
		if !ok {
			col = colExtra
		}
		// CIC-IDS2017 repeats "Fwd Header Length"; the first occurrence wins.
		if seen[name] {
			col = colSkip
		}
		seen[name] = true
		d.headers = append(d.headers, name)
		d.cols = append(d.cols, col)
	}
	return d, nil
}

// Next returns the next record or io.EOF.
func (d *Decoder) Next() (model.RawFlowRecord, error) {
	row, err := d.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return model.RawFlowRecord{}, io.EOF
		}
		return model.RawFlowRecord{}, fmt.Errorf("line %d: %w", d.line+1, err)
	}
	d.line++

	rec := model.RawFlowRecord{Fields: make(map[string]float64, len(row))}
	for i, cell := range row {
		if i >= len(d.cols) {
			break
		}
		cell = strings.TrimSpace(cell)
		col := d.cols[i]
		switch col {
		case colID:
			rec.ID = cell
			continue
		case colTimestamp:
			rec.Timestamp = parseTimestamp(cell)
			continue
		case colSrcIP:
			rec.SrcIP = cell
			continue
		case colDstIP:
			rec.DstIP = cell
			continue
		case colProtocol:
			rec.Protocol = cell
			continue
		case colLabel, colSkip:
			continue
		}

		v, ok := parseNumber(cell)
		if !ok {
			continue
		}
		switch col {
		case colSrcPort:
			rec.SrcPort = port(v)
		case colDstPort:
			rec.DstPort = port(v)
		case colFlowDuration:
			rec.Duration, rec.HasDuration = v*d.scale, true
		case colDurationSeconds:
			if !rec.HasDuration {
				rec.Duration, rec.HasDuration = v, true
			}
		case colFwdPackets:
			rec.FwdPackets = counter(v)
		case colBwdPackets:
			rec.BwdPackets = counter(v)
		case colFwdBytes:
			rec.FwdBytes = counter(v)
		case colBwdBytes:
			rec.BwdBytes = counter(v)
		case colBytesPerSec:
			rec.BytesPerSec = &v
		case colPacketsPerSec:
			rec.PacketsPerSec = &v
		}
		if !identity[col] {
			rec.Fields[d.headers[i]] = v
		}
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()[:8]
	}
	return rec, nil
}

// ReadAll decodes every remaining record.
func (d *Decoder) ReadAll() ([]model.RawFlowRecord, error) {
	var out []model.RawFlowRecord
	for {
		rec, err := d.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

// ReadCSV decodes a whole CSV stream.
func ReadCSV(r io.Reader, opts Options) ([]model.RawFlowRecord, error) {
	d, err := NewDecoder(r, opts)
	if err != nil {
		return nil, err
	}
	return d.ReadAll()
}

// ReadCSVFile decodes the CSV file at path.
func ReadCSVFile(path string, opts Options) ([]model.RawFlowRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open flow export: %w", err)
	}
	defer f.Close()
	return ReadCSV(f, opts)
}

// parseNumber drops empty, NaN and infinite cells so they default later.
func parseNumber(cell string) (float64, bool) {
	if cell == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func counter(v float64) uint64 {
	if v <= 0 {
		return 0
	}
	return uint64(v)
}

func port(v float64) uint16 {
	if v <= 0 || v > math.MaxUint16 {
		return 0
	}
	return uint16(v)
}

func parseTimestamp(cell string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, cell); err == nil {
			return t
		}
	}
	return time.Time{}
}
