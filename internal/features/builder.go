// Package features turns raw flow records into the fixed-order, scaled
// vectors the trained models expect.
package features

import (
	"NetVerdict/internal/model"
	"fmt"
	"strconv"
	"strings"
)

// Options tunes a Builder.
type Options struct {
	// MissingDefault replaces features absent from a record.
	MissingDefault float64
	// ScaleFloor is the smallest scale used as a divisor.
	ScaleFloor float64
	// Required features fail the record instead of being defaulted.
	Required []string
}

// Builder converts records into feature vectors for one trained schema.
// It is immutable and safe for concurrent use.
type Builder struct {
	names    []string
	scaler   Scaler
	opts     Options
	required map[string]bool
}

// NewBuilder returns a Builder for the ordered feature names and their fitted scaler.
func NewBuilder(names []string, scaler Scaler, opts Options) (*Builder, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("empty feature list")
	}
	if err := scaler.Validate(len(names)); err != nil {
		return nil, err
	}
	if opts.ScaleFloor <= 0 {
		opts.ScaleFloor = 1e-12
	}
	b := &Builder{
		names:    append([]string(nil), names...),
		scaler:   scaler,
		opts:     opts,
		required: make(map[string]bool, len(opts.Required)),
	}
	for _, r := range opts.Required {
		b.required[r] = true
	}
	return b, nil
}

// Names returns a copy of the ordered feature names.
func (b *Builder) Names() []string {
	return append([]string(nil), b.names...)
}

// Dim returns the vector length the builder produces.
func (b *Builder) Dim() int {
	return len(b.names)
}

// Build produces the scaled feature vector for r.
func (b *Builder) Build(r *model.RawFlowRecord) (model.FeatureVector, error) {
	if r.HasDuration && r.Duration < 0 {
		return model.FeatureVector{}, &Error{
			Kind:   KindInvalidDuration,
			Detail: fmt.Sprintf("negative duration %v", r.Duration),
		}
	}

	raw := make([]float64, len(b.names))
	var missing []string

	if r.Vector != nil {
		if len(r.Vector) != len(b.names) {
			return model.FeatureVector{}, &Error{
				Kind:   KindDimensionMismatch,
				Detail: fmt.Sprintf("record vector has %d values, schema has %d", len(r.Vector), len(b.names)),
			}
		}
		for i, v := range r.Vector {
			raw[i] = clean(v)
		}
	} else {
		for i, name := range b.names {
			v, ok, err := lookup(r, name)
			if err != nil {
				return model.FeatureVector{}, err
			}
			if !ok {
				if b.required[name] {
					return model.FeatureVector{}, &Error{Kind: KindMissingRequired, Feature: name, Detail: "absent from record"}
				}
				v = b.opts.MissingDefault
				missing = append(missing, name)
			}
			raw[i] = clean(v)
		}
	}

	values := make([]float64, len(raw))
	for i, v := range raw {
		values[i] = b.scaler.transform(i, v, b.opts.ScaleFloor)
	}
	if len(values) != len(b.names) {
		return model.FeatureVector{}, &Error{
			Kind:   KindDimensionMismatch,
			Detail: fmt.Sprintf("built %d values for %d features", len(values), len(b.names)),
		}
	}
	return model.FeatureVector{Values: values, Missing: missing}, nil
}

// lookup resolves one feature: explicit column first, then the typed field
// the name stands for, then a rate derived from duration.
func lookup(r *model.RawFlowRecord, name string) (float64, bool, error) {
	if v, ok := r.Field(name); ok {
		return v, true, nil
	}
	if get, ok := coreFields[normalize(name)]; ok {
		return get(r)
	}
	if rate, ok := rateFields[normalize(name)]; ok {
		if v := rate.supplied(r); v != nil && finite(*v) {
			return *v, true, nil
		}
		if !r.HasDuration || r.Duration <= 0 {
			return 0, false, &Error{
				Kind:    KindInvalidDuration,
				Feature: name,
				Detail:  fmt.Sprintf("cannot derive rate from duration %v", r.Duration),
			}
		}
		return rate.derive(model.DerivedRates(r)), true, nil
	}
	return 0, false, nil
}

func normalize(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

type fieldGetter func(r *model.RawFlowRecord) (float64, bool, error)

func count(v uint64) (float64, bool, error) { return float64(v), true, nil }

// coreFields maps CICFlowMeter and CIC-IDS column names onto typed record fields.
var coreFields = map[string]fieldGetter{
	"flow duration": func(r *model.RawFlowRecord) (float64, bool, error) {
		if !r.HasDuration {
			return 0, false, nil
		}
		// exported in microseconds
		return r.Duration * 1e6, true, nil
	},
	"total fwd packets":           func(r *model.RawFlowRecord) (float64, bool, error) { return count(r.FwdPackets) },
	"total fwd packet":            func(r *model.RawFlowRecord) (float64, bool, error) { return count(r.FwdPackets) },
	"tot fwd pkts":                func(r *model.RawFlowRecord) (float64, bool, error) { return count(r.FwdPackets) },
	"total backward packets":      func(r *model.RawFlowRecord) (float64, bool, error) { return count(r.BwdPackets) },
	"total bwd packets":           func(r *model.RawFlowRecord) (float64, bool, error) { return count(r.BwdPackets) },
	"tot bwd pkts":                func(r *model.RawFlowRecord) (float64, bool, error) { return count(r.BwdPackets) },
	"total length of fwd packets": func(r *model.RawFlowRecord) (float64, bool, error) { return count(r.FwdBytes) },
	"totlen fwd pkts":             func(r *model.RawFlowRecord) (float64, bool, error) { return count(r.FwdBytes) },
	"total length of bwd packets": func(r *model.RawFlowRecord) (float64, bool, error) { return count(r.BwdBytes) },
	"totlen bwd pkts":             func(r *model.RawFlowRecord) (float64, bool, error) { return count(r.BwdBytes) },
	"destination port":            func(r *model.RawFlowRecord) (float64, bool, error) { return count(uint64(r.DstPort)) },
	"dst port":                    func(r *model.RawFlowRecord) (float64, bool, error) { return count(uint64(r.DstPort)) },
	"source port":                 func(r *model.RawFlowRecord) (float64, bool, error) { return count(uint64(r.SrcPort)) },
	"src port":                    func(r *model.RawFlowRecord) (float64, bool, error) { return count(uint64(r.SrcPort)) },
	"protocol": func(r *model.RawFlowRecord) (float64, bool, error) {
		v, err := strconv.ParseFloat(strings.TrimSpace(r.Protocol), 64)
		if err != nil {
			return 0, false, nil
		}
		return v, true, nil
	},
}

type rateField struct {
	supplied func(r *model.RawFlowRecord) *float64
	derive   func(model.Rates) float64
}

func notSupplied(*model.RawFlowRecord) *float64 { return nil }

var rateFields = map[string]rateField{
	"flow bytes/s": {
		supplied: func(r *model.RawFlowRecord) *float64 { return r.BytesPerSec },
		derive:   func(x model.Rates) float64 { return x.BytesPerSec },
	},
	"flow byts/s": {
		supplied: func(r *model.RawFlowRecord) *float64 { return r.BytesPerSec },
		derive:   func(x model.Rates) float64 { return x.BytesPerSec },
	},
	"flow packets/s": {
		supplied: func(r *model.RawFlowRecord) *float64 { return r.PacketsPerSec },
		derive:   func(x model.Rates) float64 { return x.PacketsPerSec },
	},
	"flow pkts/s": {
		supplied: func(r *model.RawFlowRecord) *float64 { return r.PacketsPerSec },
		derive:   func(x model.Rates) float64 { return x.PacketsPerSec },
	},
	"fwd packets/s": {supplied: notSupplied, derive: func(x model.Rates) float64 { return x.FwdPacketsPerSec }},
	"fwd pkts/s":    {supplied: notSupplied, derive: func(x model.Rates) float64 { return x.FwdPacketsPerSec }},
	"bwd packets/s": {supplied: notSupplied, derive: func(x model.Rates) float64 { return x.BwdPacketsPerSec }},
	"bwd pkts/s":    {supplied: notSupplied, derive: func(x model.Rates) float64 { return x.BwdPacketsPerSec }},
}
