package service

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sso312/QueryLens-sub002/internal/lexicon"
	"github.com/sso312/QueryLens-sub002/internal/model"
)

// Signal weights. The sum is clamped to [0, maxRisk].
const (
	maxRisk = 10.0

	weightAggregation = 1.5
	weightNested      = 1.5
	weightDateRange   = 1.0
	weightRanking     = 1.0
	weightPerJoin     = 1.0
	maxJoinWeight     = 4.0
	weightMultiPhrase = 0.5
	weightWriteIntent = 3.0
	weightLongText    = 0.5

	longQuestionWords = 25
)

var (
	aggregationTerms = []string{
		"how many", "count", "number of", "total", "sum", "average", "avg", "mean",
		"median", "maximum", "minimum", "max", "min", "rate", "percentage", "percent",
		"proportion", "ratio", "distribution",
	}
	dateRangeTerms = []string{
		"between", "since", "before", "after", "during", "within", "until",
		"last year", "last month", "last week", "this year", "per year", "per month",
		"yearly", "monthly", "weekly", "daily", "date", "dates", "year", "years",
		"month", "months", "trend", "over time",
	}
	rankingTerms = []string{
		"top", "bottom", "rank", "ranking", "highest", "lowest", "most", "least",
		"compare", "compared", "comparison", "versus", "vs", "more than", "less than",
		"greater than", "best", "worst",
	}
	multiTablePhrases = []string{
		"each", "per", "along with", "together with", "combined", "across", "joined",
		"for every", "grouped by", "broken down",
	}
	writeIntentTerms = []string{
		"delete", "remove", "update", "insert", "drop", "truncate", "alter", "modify",
		"change", "overwrite", "erase", "create table",
	}

	// entityTerms maps clinical nouns onto the table family they imply.
	entityTerms = map[string]string{
		"patient": "patients", "patients": "patients",
		"admission": "admissions", "admissions": "admissions", "admitted": "admissions",
		"hospitalization": "admissions", "hospitalizations": "admissions",
		"icu": "icustays", "icu stay": "icustays", "icu stays": "icustays",
		"diagnosis": "diagnoses", "diagnoses": "diagnoses", "icd": "diagnoses",
		"procedure": "procedures", "procedures": "procedures",
		"prescription": "prescriptions", "prescriptions": "prescriptions",
		"medication": "prescriptions", "medications": "prescriptions",
		"drug": "prescriptions", "drugs": "prescriptions",
		"lab": "labevents", "labs": "labevents", "lab test": "labevents",
		"lab tests": "labevents", "lab result": "labevents", "lab results": "labevents",
		"vital": "chartevents", "vitals": "chartevents", "vital signs": "chartevents",
		"chart events": "chartevents",
		"transfer": "transfers", "transfers": "transfers", "ward": "transfers",
		"wards": "transfers", "unit": "transfers", "units": "transfers",
		"culture": "microbiology", "cultures": "microbiology", "microbiology": "microbiology",
		"note": "notes", "notes": "notes",
	}

	reYear = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

// RiskClassifier scores how complex a question is from lexical signals. It is
// deterministic and does no I/O.
type RiskClassifier struct {
	aggregation *lexicon.Matcher
	dateRange   *lexicon.Matcher
	ranking     *lexicon.Matcher
	multiTable  *lexicon.Matcher
	writeIntent *lexicon.Matcher
	entities    *lexicon.Matcher
}

func NewRiskClassifier() *RiskClassifier {
	entities := make([]string, 0, len(entityTerms))
	for term := range entityTerms {
		entities = append(entities, term)
	}
	sort.Strings(entities)

	return &RiskClassifier{
		aggregation: lexicon.NewMatcher(aggregationTerms),
		dateRange:   lexicon.NewMatcher(dateRangeTerms),
		ranking:     lexicon.NewMatcher(rankingTerms),
		multiTable:  lexicon.NewMatcher(multiTablePhrases),
		writeIntent: lexicon.NewMatcher(writeIntentTerms),
		entities:    lexicon.NewMatcher(entities),
	}
}

// Classify scores q. An empty question scores zero with no factors.
func (c *RiskClassifier) Classify(q model.Question) model.RiskScore {
	if q.IsEmpty() {
		return model.RiskScore{Value: 0, Factors: []string{}}
	}
	// Normalized text has single spaces, so multi-word terms line up.
	text := q.Normalized

	var score float64
	factors := []string{}

	aggDepth := len(c.aggregation.FindAll(text))
	if aggDepth > 0 {
		score += weightAggregation
		factors = append(factors, model.FactorAggregation)
	}
	if aggDepth > 1 {
		score += weightNested
		factors = append(factors, model.FactorNested)
	}

	if len(c.dateRange.FindAll(text)) > 0 || reYear.MatchString(text) {
		score += weightDateRange
		factors = append(factors, model.FactorDateRange)
	}

	if len(c.ranking.FindAll(text)) > 0 {
		score += weightRanking
		factors = append(factors, model.FactorRanking)
	}

	joins := EstimateJoins(c.entities.Distinct(text))
	phrased := len(c.multiTable.FindAll(text)) > 0
	if joins > 0 || phrased {
		score += min(float64(joins)*weightPerJoin, maxJoinWeight)
		if phrased {
			score += weightMultiPhrase
		}
		factors = append(factors, model.FactorMultiTable)
	}

	if len(c.writeIntent.FindAll(text)) > 0 {
		score += weightWriteIntent
		factors = append(factors, model.FactorWriteIntent)
	}

	if len(strings.Fields(text)) > longQuestionWords {
		score += weightLongText
		factors = append(factors, model.FactorLongText)
	}

	sort.Strings(factors)
	return model.RiskScore{Value: max(0, min(score, maxRisk)), Factors: factors}
}

// EstimateJoins returns the distinct table families named by terms, minus one.
func EstimateJoins(terms []string) int {
	tables := make(map[string]bool)
	for _, t := range terms {
		if table, ok := entityTerms[t]; ok {
			tables[table] = true
		}
	}
	if len(tables) <= 1 {
		return 0
	}
	return len(tables) - 1
}
