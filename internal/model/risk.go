package model

// Risk factor tags attached to a RiskScore.
const (
	FactorAggregation = "aggregation"
	FactorDateRange   = "date-range"
	FactorMultiTable  = "multi-table"
	FactorRanking     = "ranking"
	FactorNested      = "nested-aggregation"
	FactorWriteIntent = "write-intent"
	FactorLongText    = "long-question"
)

// RiskScore ranks how complex or dangerous a question looks.
type RiskScore struct {
	Value   float64  `json:"value"`
	Factors []string `json:"factors"`
}

// HasFactor reports whether tag contributed to the score.
func (r RiskScore) HasFactor(tag string) bool {
	for _, f := range r.Factors {
		if f == tag {
			return true
		}
	}
	return false
}
