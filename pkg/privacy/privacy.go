package privacy

import (
	"github.com/neurofed/axon/pkg/metrics"
	"github.com/neurofed/axon/pkg/types"
)

// cohortFields are the artifact keys inspected for the cohort count, in
// priority order.
var cohortFields = []string{"sample_size", "total_subjects", "n_subjects", "n"}

// Verdict is the gate's decision for one result payload.
type Verdict struct {
	Released bool
	// Observed is the cohort count found in the payload; valid only when
	// Known is true.
	Observed int
	Known    bool
	// K is the catalog's minimum cohort size.
	K int
}

// Placeholder is the payload published in place of a blocked result. The
// original stays internal for audit.
func (v Verdict) Placeholder() map[string]any {
	out := map[string]any{
		"blocked": true,
		"reason":  "cohort-below-minimum",
		"k":       v.K,
	}
	if v.Known {
		out["observed"] = v.Observed
	}
	return out
}

// Inspect applies the cohort-size policy to one result payload. A payload
// without any cohort field is unknown; unknown passes unless the catalog's
// privacy level is high.
func Inspect(payload map[string]any, cat *types.Catalog) Verdict {
	v := Verdict{K: cat.MinCohortSize}
	if v.K < 1 {
		v.K = 1
	}

	for _, field := range cohortFields {
		if n, ok := asCount(payload[field]); ok {
			v.Observed = n
			v.Known = true
			break
		}
	}

	switch {
	case v.Known:
		v.Released = v.Observed >= v.K
	default:
		v.Released = cat.PrivacyLevel != types.PrivacyHigh
	}

	if v.Released {
		metrics.ResultsTotal.WithLabelValues("released").Inc()
	} else {
		metrics.ResultsTotal.WithLabelValues("blocked").Inc()
	}
	return v
}

// asCount coerces the JSON numeric shapes to a cohort count.
func asCount(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}
