package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/autobidder/internal/formula"
)

func TestSampleFormulasEvaluate(t *testing.T) {
	for _, f := range sampleFormulas() {
		t.Run(f.Name, func(t *testing.T) {
			require.NoError(t, f.Validate())
			require.NoError(t, formula.Check(f))

			res, err := formula.Evaluate(f, map[string]any{})
			require.NoError(t, err)
			require.Positive(t, res.Price)
		})
	}
}

func TestSampleSettingsValid(t *testing.T) {
	require.NoError(t, sampleSettings().Validate())
}
