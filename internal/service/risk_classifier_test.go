package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sso312/QueryLens-sub002/internal/model"
)

func TestRiskClassifier_Classify(t *testing.T) {
	c := NewRiskClassifier()

	t.Run("empty question", func(t *testing.T) {
		r := c.Classify(model.NewQuestion("   ?! "))
		assert.Zero(t, r.Value)
		assert.Empty(t, r.Factors)
	})

	t.Run("simple count stays below threshold", func(t *testing.T) {
		r := c.Classify(model.NewQuestion("How many female patients are there?"))
		assert.Equal(t, 1.5, r.Value)
		assert.Equal(t, []string{model.FactorAggregation}, r.Factors)
	})

	t.Run("multi-table ranking question escalates", func(t *testing.T) {
		r := c.Classify(model.NewQuestion("Rank the top 10 wards by average length of stay for patients admitted " +
			"between 2018 and 2020, compared with the total count of ICU stays per admission"))
		assert.GreaterOrEqual(t, r.Value, 4.0)
		for _, f := range []string{
			model.FactorAggregation, model.FactorNested, model.FactorDateRange,
			model.FactorRanking, model.FactorMultiTable, model.FactorLongText,
		} {
			assert.True(t, r.HasFactor(f), "missing factor %s", f)
		}
		assert.IsIncreasing(t, r.Factors)
	})

	t.Run("write intent", func(t *testing.T) {
		r := c.Classify(model.NewQuestion("Delete all patients without admissions"))
		assert.True(t, r.HasFactor(model.FactorWriteIntent))
		assert.Equal(t, 4.0, r.Value)
	})

	t.Run("year mention counts as date range", func(t *testing.T) {
		r := c.Classify(model.NewQuestion("patients admitted in 2019"))
		assert.True(t, r.HasFactor(model.FactorDateRange))
	})

	t.Run("clamped to ten", func(t *testing.T) {
		q := "delete update drop the top ranked average total count sum of patients admissions icu stays " +
			"diagnoses procedures prescriptions labs vitals transfers cultures notes per year between 2010 and 2020 " +
			strings.Repeat("and more ", 20)
		r := c.Classify(model.NewQuestion(q))
		assert.Equal(t, 10.0, r.Value)
	})

	t.Run("deterministic and normalization-insensitive", func(t *testing.T) {
		a := c.Classify(model.NewQuestion("Average LOS per ICU stay since 2015?"))
		b := c.Classify(model.NewQuestion("average   los per icu stay, since 2015"))
		assert.Equal(t, a, b)
	})
}

func TestEstimateJoins(t *testing.T) {
	assert.Equal(t, 0, EstimateJoins(nil))
	assert.Equal(t, 0, EstimateJoins([]string{"patient", "patients"}))
	assert.Equal(t, 2, EstimateJoins([]string{"patients", "icu", "labs"}))
	assert.Equal(t, 1, EstimateJoins([]string{"drug", "medications", "admitted"}))
	assert.Equal(t, 0, EstimateJoins([]string{"unknown"}))
}
