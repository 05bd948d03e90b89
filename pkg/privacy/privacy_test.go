package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/neurofed/axon/pkg/types"
)

func testCatalog(k int, privacy types.PrivacyLevel) *types.Catalog {
	return &types.Catalog{
		ID:            "clinical_trial_data",
		MinCohortSize: k,
		PrivacyLevel:  privacy,
	}
}

// TestInspect tests the cohort-size gate
func TestInspect(t *testing.T) {
	tests := []struct {
		name     string
		payload  map[string]any
		k        int
		privacy  types.PrivacyLevel
		released bool
		observed int
		known    bool
	}{
		{
			name:     "cohort at minimum is released",
			payload:  map[string]any{"sample_size": float64(10)},
			k:        10,
			privacy:  types.PrivacyMedium,
			released: true,
			observed: 10,
			known:    true,
		},
		{
			name:     "cohort one below minimum is blocked",
			payload:  map[string]any{"sample_size": float64(9)},
			k:        10,
			privacy:  types.PrivacyMedium,
			released: false,
			observed: 9,
			known:    true,
		},
		{
			name:     "unknown cohort passes at medium privacy",
			payload:  map[string]any{"mean": 4.2},
			k:        10,
			privacy:  types.PrivacyMedium,
			released: true,
		},
		{
			name:     "unknown cohort blocked at high privacy",
			payload:  map[string]any{"mean": 4.2},
			k:        10,
			privacy:  types.PrivacyHigh,
			released: false,
		},
		{
			name:     "total_subjects recognized",
			payload:  map[string]any{"total_subjects": float64(150)},
			k:        10,
			privacy:  types.PrivacyHigh,
			released: true,
			observed: 150,
			known:    true,
		},
		{
			name:     "n recognized",
			payload:  map[string]any{"n": float64(3)},
			k:        10,
			privacy:  types.PrivacyLow,
			released: false,
			observed: 3,
			known:    true,
		},
		{
			name: "field priority: sample_size wins over n",
			payload: map[string]any{
				"n":           float64(3),
				"sample_size": float64(40),
			},
			k:        10,
			privacy:  types.PrivacyMedium,
			released: true,
			observed: 40,
			known:    true,
		},
		{
			name:     "non-numeric cohort field is unknown",
			payload:  map[string]any{"sample_size": "forty"},
			k:        10,
			privacy:  types.PrivacyHigh,
			released: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Inspect(tt.payload, testCatalog(tt.k, tt.privacy))
			assert.Equal(t, tt.released, v.Released)
			assert.Equal(t, tt.known, v.Known)
			if tt.known {
				assert.Equal(t, tt.observed, v.Observed)
			}
			assert.Equal(t, tt.k, v.K)
		})
	}
}

func TestPlaceholder(t *testing.T) {
	v := Inspect(map[string]any{"sample_size": float64(3)}, testCatalog(10, types.PrivacyMedium))
	placeholder := v.Placeholder()

	assert.Equal(t, true, placeholder["blocked"])
	assert.Equal(t, "cohort-below-minimum", placeholder["reason"])
	assert.Equal(t, 10, placeholder["k"])
	assert.Equal(t, 3, placeholder["observed"])
}

func TestPlaceholderUnknownCohort(t *testing.T) {
	v := Inspect(map[string]any{}, testCatalog(10, types.PrivacyHigh))
	placeholder := v.Placeholder()

	assert.Equal(t, true, placeholder["blocked"])
	_, hasObserved := placeholder["observed"]
	assert.False(t, hasObserved)
}

func TestZeroMinCohortDefaultsToOne(t *testing.T) {
	v := Inspect(map[string]any{"n": float64(1)}, testCatalog(0, types.PrivacyLow))
	assert.True(t, v.Released)
	assert.Equal(t, 1, v.K)
}
