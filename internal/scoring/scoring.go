// Package scoring turns per-answer rubric scores into session summaries.
package scoring

import (
	"math"

	"github.com/pavelanni/interviewer/internal/model"
)

// Weights of the dashboard rubric. They sum to 1.0.
var (
	WeightConfidence = 0.30
	WeightGrammar    = 0.25
	WeightContent    = 0.30
	WeightStructure  = 0.15
)

// Criteria describes what each dashboard metric measures.
var Criteria = map[string]string{
	"confidence": "Measures tone, energy, pace, and steadiness.",
	"grammar":    "Checks sentence flow, filler words, and coherence.",
	"content":    "Evaluates how directly and insightfully the answer addresses the question.",
	"structure":  "Assesses logical flow (introduction, context, action, result).",
}

// DashboardScores are the four 0-100 metrics of the dashboard rubric.
type DashboardScores struct {
	Confidence float64 `json:"confidence"`
	Grammar    float64 `json:"grammar"`
	Content    float64 `json:"content"`
	Structure  float64 `json:"structure"`
}

// WeightedScore returns the unrounded weighted average of s.
func WeightedScore(s DashboardScores) float64 {
	return s.Confidence*WeightConfidence +
		s.Grammar*WeightGrammar +
		s.Content*WeightContent +
		s.Structure*WeightStructure
}

// CalculateOverallScore returns the weighted dashboard score rounded to the
// nearest integer.
func CalculateOverallScore(s DashboardScores) int {
	return int(math.Round(WeightedScore(s)))
}

// Summary is the aggregated result of a whole session, every field in 0-100.
type Summary struct {
	Confidence int `json:"confidence"`
	Grammar    int `json:"grammar"`
	Relevance  int `json:"relevance"`
	Clarity    int `json:"clarity"`
	Overall    int `json:"overall"`
}

// Aggregate averages the 0-10 sub-scores of all responses, scales them to
// 0-100 and takes the unweighted mean of the four categories as the overall
// score. Responses without an evaluation count as zero.
func Aggregate(responses []model.QuestionResponse) Summary {
	if len(responses) == 0 {
		return Summary{}
	}

	var confidence, grammar, relevance, clarity float64
	for _, r := range responses {
		if r.Evaluation == nil {
			continue
		}
		s := r.Evaluation.Scores
		confidence += clamp(s.Confidence, 0, 10) * 10
		grammar += clamp(s.Grammar, 0, 10) * 10
		relevance += clamp(s.Relevance, 0, 10) * 10
		clarity += clamp(s.Clarity, 0, 10) * 10
	}

	n := float64(len(responses))
	sum := Summary{
		Confidence: round(confidence / n),
		Grammar:    round(grammar / n),
		Relevance:  round(relevance / n),
		Clarity:    round(clarity / n),
	}
	sum.Overall = round(float64(sum.Confidence+sum.Grammar+sum.Relevance+sum.Clarity) / 4)
	return sum
}

// CollectFeedback gathers strengths and improvements across responses in
// answer order, keeping at most limit of each.
func CollectFeedback(responses []model.QuestionResponse, limit int) (strengths, improvements []string) {
	for _, r := range responses {
		if r.Evaluation == nil {
			continue
		}
		strengths = append(strengths, r.Evaluation.Strengths...)
		improvements = append(improvements, r.Evaluation.Improvements...)
	}
	if limit > 0 {
		if len(strengths) > limit {
			strengths = strengths[:limit]
		}
		if len(improvements) > limit {
			improvements = improvements[:limit]
		}
	}
	return strengths, improvements
}

// Clamp bounds v to [lo, hi]. NaN is treated as lo.
func Clamp(v, lo, hi float64) float64 {
	return clamp(v, lo, hi)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round(v float64) int {
	return int(math.Round(v))
}
