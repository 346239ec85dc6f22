package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJaroWinkler(t *testing.T) {
	scorer := NewScorer()

	t.Run("ExactMatch", func(t *testing.T) {
		assert.Equal(t, 1.0, scorer.JaroWinkler("northwind", "northwind"))
	})

	t.Run("NoOverlap", func(t *testing.T) {
		assert.Equal(t, 0.0, scorer.JaroWinkler("abc", "xyz"))
	})

	t.Run("EmptyStrings", func(t *testing.T) {
		assert.Equal(t, 0.0, scorer.JaroWinkler("", "northwind"))
		assert.Equal(t, 0.0, scorer.JaroWinkler("northwind", ""))
	})

	t.Run("PrefixBoost", func(t *testing.T) {
		// Winkler boosts shared prefixes, so the prefixed pair must score
		// at least as high as its plain Jaro similarity
		withPrefix := scorer.JaroWinkler("north", "northwind")
		plain := scorer.Jaro("north", "northwind")
		assert.GreaterOrEqual(t, withPrefix, plain)
	})

	t.Run("Symmetry", func(t *testing.T) {
		assert.InDelta(t, scorer.Jaro("martha", "marhta"), scorer.Jaro("marhta", "martha"), 1e-9)
	})

	t.Run("KnownValue", func(t *testing.T) {
		// Classic Jaro example pair
		assert.InDelta(t, 0.944, scorer.Jaro("martha", "marhta"), 0.001)
	})

	t.Run("CloseVariantsScoreHigh", func(t *testing.T) {
		assert.Greater(t, scorer.JaroWinkler("northwind", "northwnd"), 0.9)
	})
}

func TestNameSimilarity(t *testing.T) {
	scorer := NewScorer()

	tests := []struct {
		name           string
		label          string
		normalizedName string
		expectExact    bool
		floor          float64
	}{
		{
			name:           "label matches first token exactly",
			label:          "northwind",
			normalizedName: "northwind traders",
			expectExact:    true,
		},
		{
			name:           "label matches later token exactly",
			label:          "traders",
			normalizedName: "northwind traders",
			expectExact:    true,
		},
		{
			name:           "label matches collapsed full name",
			label:          "northwindtraders",
			normalizedName: "northwind traders",
			expectExact:    true,
		},
		{
			name:           "single token name",
			label:          "acme",
			normalizedName: "acme",
			expectExact:    true,
		},
		{
			name:           "close variant scores high but not exact",
			label:          "northwnd",
			normalizedName: "northwind traders",
			floor:          0.9,
		},
		{
			name:           "unrelated label scores low",
			label:          "globex",
			normalizedName: "northwind traders",
			floor:          0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := scorer.NameSimilarity(tt.label, tt.normalizedName)
			if tt.expectExact {
				assert.Equal(t, 1.0, sim)
				return
			}
			assert.GreaterOrEqual(t, sim, tt.floor)
			assert.Less(t, sim, 1.0)
		})
	}

	t.Run("EmptyInputs", func(t *testing.T) {
		assert.Equal(t, 0.0, scorer.NameSimilarity("", "northwind"))
		assert.Equal(t, 0.0, scorer.NameSimilarity("northwind", ""))
	})
}

func TestLevenshtein(t *testing.T) {
	scorer := NewScorer()

	t.Run("Distance", func(t *testing.T) {
		assert.Equal(t, 0, scorer.LevenshteinDistance("acme", "acme"))
		assert.Equal(t, 1, scorer.LevenshteinDistance("acme", "acmes"))
		assert.Equal(t, 3, scorer.LevenshteinDistance("kitten", "sitting"))
		assert.Equal(t, 4, scorer.LevenshteinDistance("", "acme"))
	})

	t.Run("Similarity", func(t *testing.T) {
		assert.Equal(t, 1.0, scorer.Levenshtein("", ""))
		assert.Equal(t, 1.0, scorer.Levenshtein("acme", "acme"))
		assert.InDelta(t, 0.75, scorer.Levenshtein("acme", "acne"), 1e-9)
	})
}
