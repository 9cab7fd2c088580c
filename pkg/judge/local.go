package judge

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// LocalEvaluator reproduces the Relevance/Accuracy/Completeness rubric
// heuristically, without calling the external judge API. It is
// dispatched by the fallback controller while the judge service is
// marked unavailable; its result always carries Tokens=0, CostUSD=0
// since no external call is made.
type LocalEvaluator struct{}

// NewLocalEvaluator builds a LocalEvaluator. It has no dependencies.
func NewLocalEvaluator() *LocalEvaluator { return &LocalEvaluator{} }

var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9]+`)

func tokenize(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(s), -1) {
		out[tok] = struct{}{}
	}
	return out
}

// jaccard is the size of the intersection over the size of the union of
// two token sets; 0 when both sets are empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Evaluate scores (query, context, answer) via lexical overlap in place
// of the external judge: Relevance is answer-vs-query overlap, Accuracy
// is answer-vs-context overlap (a crude grounding check), Completeness
// is the fraction of query terms present somewhere in the answer. The
// weighted sum is mapped from [0,1] onto the reward range [-1,1], matching
// the same rubric weights as the external judge.
func (e *LocalEvaluator) Evaluate(_ context.Context, query string, contextDocs []string, answer string) (EvalResult, error) {
	queryTokens := tokenize(query)
	answerTokens := tokenize(answer)

	contextTokens := map[string]struct{}{}
	for _, doc := range contextDocs {
		for tok := range tokenize(doc) {
			contextTokens[tok] = struct{}{}
		}
	}

	relevance := jaccard(queryTokens, answerTokens)
	accuracy := jaccard(contextTokens, answerTokens)
	completeness := coverage(queryTokens, answerTokens)

	weighted := WeightRelevance*relevance + WeightAccuracy*accuracy + WeightCompletness*completeness
	reward := weighted*2 - 1

	reasoning := fmt.Sprintf(
		"local fallback evaluation: relevance=%.2f accuracy=%.2f completeness=%.2f",
		relevance, accuracy, completeness)

	return EvalResult{Reward: reward, Reasoning: reasoning, Tokens: 0, CostUSD: 0}, nil
}

// Reflect produces a generic verbal lesson without an external call,
// used only while the fallback controller is active.
func (e *LocalEvaluator) Reflect(_ context.Context, query, _ string, reward float64, _ string) (string, error) {
	return fmt.Sprintf(
		"low-reward (%.2f) response to %q: revisit retrieved context for stronger coverage and grounding before answering.",
		reward, query), nil
}

// coverage is the fraction of query terms also present in answer; 0 when
// the query has no terms.
func coverage(queryTokens, answerTokens map[string]struct{}) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	covered := 0
	for tok := range queryTokens {
		if _, ok := answerTokens[tok]; ok {
			covered++
		}
	}
	return float64(covered) / float64(len(queryTokens))
}
