// Package protocol implements the stdio protocol surface: typed
// request/response handling for every exposed tool and resource, wired to
// the memory, search, graph, and maintenance components beneath it.
// This file holds the domain-facing
// Service — plain Go in, plain Go out — kept independent of the MCP SDK
// types so it can be exercised directly in tests.
package protocol

import (
	"context"
	"time"

	"github.com/tarsy-labs/cogmem/pkg/cogmemerr"
	"github.com/tarsy-labs/cogmem/pkg/database"
	"github.com/tarsy-labs/cogmem/pkg/evaluation"
	"github.com/tarsy-labs/cogmem/pkg/fallback"
	"github.com/tarsy-labs/cogmem/pkg/golden"
	"github.com/tarsy-labs/cogmem/pkg/graph"
	"github.com/tarsy-labs/cogmem/pkg/irr"
	"github.com/tarsy-labs/cogmem/pkg/judge"
	"github.com/tarsy-labs/cogmem/pkg/memory"
	"github.com/tarsy-labs/cogmem/pkg/models"
	"github.com/tarsy-labs/cogmem/pkg/search"
)

// Judge is the subset of judge.Client (or judge.LocalEvaluator) a dual
// scoring pass needs — Evaluate alone, without the Reflect method the
// full evaluation loop (evaluation.Judge) additionally requires.
type Judge interface {
	Evaluate(ctx context.Context, query string, contextDocs []string, answer string) (judge.EvalResult, error)
}

// Service wires the protocol surface's typed operations to the tiered
// memory, search, graph, judge, and maintenance components. It carries no
// MCP-specific types so it can be unit-tested directly.
type Service struct {
	tiers      *memory.Tiers
	searcher   *search.Searcher
	expander   *search.Expander
	graphStore *graph.Store
	pool       *database.Pool

	judge1 Judge
	judge2 Judge

	evalLoop      *evaluation.Loop
	evalJudge1    evaluation.Judge
	evalJudge2    evaluation.Judge
	fallbackCtl   *fallback.Controller
	goldenEval    *golden.Evaluator
	promptVersion string
}

// Deps carries every dependency Service needs. Unset fields disable the
// tools that need them (ping always works).
type Deps struct {
	Tiers         *memory.Tiers
	Searcher      *search.Searcher
	Expander      *search.Expander
	GraphStore    *graph.Store
	Pool          *database.Pool
	Judge1        Judge
	Judge2        Judge
	EvalLoop      *evaluation.Loop
	EvalJudge1    evaluation.Judge // real external judge, used while fallback is inactive
	EvalJudge2    evaluation.Judge // local fallback evaluator, used while fallback is active
	FallbackCtl   *fallback.Controller
	GoldenEval    *golden.Evaluator
	PromptVersion string
}

// New builds a Service from its wired dependencies.
func New(d Deps) *Service {
	return &Service{
		tiers: d.Tiers, searcher: d.Searcher, expander: d.Expander, graphStore: d.GraphStore, pool: d.Pool,
		judge1: d.Judge1, judge2: d.Judge2,
		evalLoop: d.EvalLoop, evalJudge1: d.EvalJudge1, evalJudge2: d.EvalJudge2,
		fallbackCtl: d.FallbackCtl, goldenEval: d.GoldenEval,
		promptVersion: d.PromptVersion,
	}
}

// --- store_raw_dialogue ---

type StoreRawDialogueArgs struct {
	SessionID string         `json:"session_id"`
	Speaker   string         `json:"speaker"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type StoreRawDialogueResult struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Service) StoreRawDialogue(ctx context.Context, args StoreRawDialogueArgs) (StoreRawDialogueResult, error) {
	turn, err := s.tiers.StoreRawTurn(ctx, args.SessionID, args.Speaker, args.Content, args.Metadata)
	if err != nil {
		return StoreRawDialogueResult{}, err
	}
	return StoreRawDialogueResult{ID: turn.ID, Timestamp: turn.CreatedAt}, nil
}

// --- compress_to_l2_insight ---

type CompressToL2InsightArgs struct {
	Content   string         `json:"content"`
	SourceIDs []int64        `json:"source_ids"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type CompressToL2InsightResult struct {
	ID              int64    `json:"id"`
	FidelityScore   *float64 `json:"fidelity_score,omitempty"`
	FidelityWarning bool     `json:"fidelity_warning,omitempty"`
}

// fidelityScoreFromMetadata extracts a caller-supplied "fidelity_score"
// entry from metadata.
func fidelityScoreFromMetadata(metadata map[string]any) *float64 {
	raw, ok := metadata["fidelity_score"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	default:
		return nil
	}
}

func (s *Service) CompressToL2Insight(ctx context.Context, args CompressToL2InsightArgs) (CompressToL2InsightResult, error) {
	fidelity := fidelityScoreFromMetadata(args.Metadata)
	insight, err := s.tiers.Compress(ctx, args.Content, args.SourceIDs, fidelity, args.Metadata)
	if err != nil {
		return CompressToL2InsightResult{}, err
	}
	return CompressToL2InsightResult{ID: insight.ID, FidelityScore: insight.FidelityScore, FidelityWarning: insight.FidelityWarning}, nil
}

// --- hybrid_search ---

type SearchWeightsArgs struct {
	Semantic float64 `json:"semantic"`
	Keyword  float64 `json:"keyword"`
}

// HybridSearchArgs uses pointers for top_k and weights so an omitted
// field (defaulted) is distinguishable from an explicit zero, which must
// fail validation rather than be silently coerced to the default.
type HybridSearchArgs struct {
	QueryText      string             `json:"query_text"`
	QueryEmbedding []float32          `json:"query_embedding,omitempty"`
	TopK           *int               `json:"top_k,omitempty"`
	Weights        *SearchWeightsArgs `json:"weights,omitempty"`
	// QueryVariants drives the multi-query fan-out/fusion; omitted,
	// hybrid_search runs a plain single-query search.
	QueryVariants []string `json:"query_variants,omitempty"`
}

type HybridSearchHit struct {
	ID            int64   `json:"id"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	SemanticScore float64 `json:"semantic_score"`
	KeywordScore  float64 `json:"keyword_score"`
	Source        string  `json:"source"`
}

type HybridSearchCounts struct {
	Requested int `json:"requested"`
	Returned  int `json:"returned"`
}

type HybridSearchResult struct {
	Results []HybridSearchHit  `json:"results"`
	Counts  HybridSearchCounts `json:"counts"`
}

func hitSource(semantic, keyword float64) string {
	switch {
	case semantic > 0 && keyword > 0:
		return "hybrid"
	case semantic > 0:
		return "semantic"
	default:
		return "keyword"
	}
}

func toHits(results []search.Result) []HybridSearchHit {
	out := make([]HybridSearchHit, len(results))
	for i, r := range results {
		out[i] = HybridSearchHit{
			ID: r.Insight.ID, Content: r.Insight.Content, Score: r.Score,
			SemanticScore: r.SemanticScore, KeywordScore: r.KeywordScore,
			Source: hitSource(r.SemanticScore, r.KeywordScore),
		}
	}
	return out
}

func (s *Service) HybridSearch(ctx context.Context, args HybridSearchArgs) (HybridSearchResult, error) {
	topK := 5
	if args.TopK != nil {
		if *args.TopK < 1 || *args.TopK > 100 {
			return HybridSearchResult{}, cogmemerr.Validation("top_k", "must be in [1,100]")
		}
		topK = *args.TopK
	}
	weights := search.Weights{Semantic: 0.7, Keyword: 0.3}
	if args.Weights != nil {
		weights = search.Weights{Semantic: args.Weights.Semantic, Keyword: args.Weights.Keyword}
		if err := weights.Validate(); err != nil {
			return HybridSearchResult{}, err
		}
	}

	var results []search.Result
	var err error
	if len(args.QueryVariants) > 0 {
		results, err = s.expander.Expand(ctx, args.QueryVariants, weights, topK)
	} else {
		var vec models.Vector
		if len(args.QueryEmbedding) > 0 {
			vec = models.Vector(args.QueryEmbedding)
		}
		results, err = s.searcher.Search(ctx, args.QueryText, vec, topK, weights)
	}
	if err != nil {
		return HybridSearchResult{}, err
	}

	return HybridSearchResult{
		Results: toHits(results),
		Counts:  HybridSearchCounts{Requested: topK, Returned: len(results)},
	}, nil
}

// --- update_working_memory ---

type UpdateWorkingMemoryArgs struct {
	// SessionID is optional (the tool schema omits session_id for
	// this tool the same way it does for store_episode); an absent value
	// upserts against the implicit empty-string session, consistent with
	// that same decision.
	SessionID  string  `json:"session_id,omitempty"`
	Content    string  `json:"content"`
	Importance float64 `json:"importance,omitempty"`
}

type UpdateWorkingMemoryResult struct {
	AddedID    int64  `json:"added_id"`
	EvictedID  *int64 `json:"evicted_id,omitempty"`
	ArchivedID *int64 `json:"archived_id,omitempty"`
}

func (s *Service) UpdateWorkingMemory(ctx context.Context, args UpdateWorkingMemoryArgs) (UpdateWorkingMemoryResult, error) {
	importance := args.Importance
	if importance == 0 {
		importance = 0.5
	}
	r, err := s.tiers.UpsertWorking(ctx, args.SessionID, args.Content, importance)
	if err != nil {
		return UpdateWorkingMemoryResult{}, err
	}
	out := UpdateWorkingMemoryResult{AddedID: r.AddedID}
	if r.EvictedID != 0 {
		out.EvictedID = &r.EvictedID
	}
	if r.ArchivedID != 0 {
		out.ArchivedID = &r.ArchivedID
	}
	return out, nil
}

// --- store_episode ---

type StoreEpisodeArgs struct {
	SessionID  string  `json:"session_id,omitempty"`
	Query      string  `json:"query"`
	Reward     float64 `json:"reward"`
	Reflection string  `json:"reflection"`
}

type StoreEpisodeResult struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Service) StoreEpisode(ctx context.Context, args StoreEpisodeArgs) (StoreEpisodeResult, error) {
	ep, err := s.tiers.StoreEpisode(ctx, args.SessionID, args.Query, args.Reward, args.Reflection)
	if err != nil {
		return StoreEpisodeResult{}, err
	}
	return StoreEpisodeResult{ID: ep.ID, Timestamp: ep.CreatedAt}, nil
}

// --- store_dual_judge_scores ---

type JudgeDoc struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
}

type StoreDualJudgeScoresArgs struct {
	QueryID int64      `json:"query_id"`
	Query   string     `json:"query"`
	Docs    []JudgeDoc `json:"docs"`
}

type StoreDualJudgeScoresResult struct {
	Judge1Score   []float64 `json:"judge1_score"`
	Judge2Score   []float64 `json:"judge2_score"`
	Kappa         float64   `json:"kappa"`
	AgreementBand string    `json:"agreement_band"`
}

// scoreDocs runs j against every doc, treating each doc's own content as
// the answer under evaluation against the shared query — the rubric is
// reused as a relevance scorer for ground-truth labeling, not just
// answer grading.
func scoreDocs(ctx context.Context, j Judge, query string, docs []JudgeDoc) ([]float64, error) {
	scores := make([]float64, len(docs))
	for i, d := range docs {
		out, err := j.Evaluate(ctx, query, []string{d.Content}, d.Content)
		if err != nil {
			return nil, err
		}
		scores[i] = out.Reward
	}
	return scores, nil
}

func (s *Service) StoreDualJudgeScores(ctx context.Context, args StoreDualJudgeScoresArgs) (StoreDualJudgeScoresResult, error) {
	if len(args.Docs) == 0 || len(args.Docs) > 50 {
		return StoreDualJudgeScoresResult{}, cogmemerr.Validation("docs", "must contain 1 to 50 entries")
	}

	judge1Scores, err := scoreDocs(ctx, s.judge1, args.Query, args.Docs)
	if err != nil {
		return StoreDualJudgeScoresResult{}, err
	}
	judge2Scores, err := scoreDocs(ctx, s.judge2, args.Query, args.Docs)
	if err != nil {
		return StoreDualJudgeScoresResult{}, err
	}

	kappa := irr.CohenKappa(irr.Binarize(judge1Scores, irr.BinarizeThreshold), irr.Binarize(judge2Scores, irr.BinarizeThreshold))

	err = s.pool.WithConn(ctx, func(ctx context.Context, conn database.Querier) error {
		var perQuery *float64
		if !isNaN(kappa) {
			perQuery = &kappa
		}
		_, err := database.InsertGroundTruthQuery(ctx, conn, models.GroundTruthQuery{
			QueryText: args.Query, PromptVersion: s.promptVersion,
			Judge1Scores: judge1Scores, Judge2Scores: judge2Scores, PerQueryKappa: perQuery,
		})
		return err
	})
	if err != nil {
		return StoreDualJudgeScoresResult{}, err
	}

	return StoreDualJudgeScoresResult{
		Judge1Score: judge1Scores, Judge2Score: judge2Scores,
		Kappa: kappa, AgreementBand: irr.AgreementBand(kappa),
	}, nil
}

func isNaN(f float64) bool { return f != f }

// --- get_golden_test_results ---

type GetGoldenTestResultsResult struct {
	Date              time.Time          `json:"date"`
	PrecisionAt5      float64            `json:"precision_at_5"`
	BaselinePrecision float64            `json:"baseline_precision"`
	DriftDetected     bool               `json:"drift_detected"`
	ByQueryType       map[string]float64 `json:"by_query_type"`
}

func (s *Service) GetGoldenTestResults(ctx context.Context) (GetGoldenTestResultsResult, error) {
	report, err := s.goldenEval.Run(ctx)
	if err != nil {
		return GetGoldenTestResultsResult{}, err
	}
	return GetGoldenTestResultsResult{
		Date: time.Now(), PrecisionAt5: report.PrecisionAt5, BaselinePrecision: report.BaselinePrecision,
		DriftDetected: report.DriftDetected, ByQueryType: report.ByQueryType,
	}, nil
}

// --- graph tools ---

type GraphAddNodeArgs struct {
	Label      string         `json:"label"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties,omitempty"`
}

type GraphAddNodeResult struct {
	ID string `json:"id"`
}

func (s *Service) GraphAddNode(ctx context.Context, args GraphAddNodeArgs) (GraphAddNodeResult, error) {
	n, err := s.graphStore.AddNode(ctx, args.Label, args.Name, args.Properties)
	if err != nil {
		return GraphAddNodeResult{}, err
	}
	return GraphAddNodeResult{ID: n.ID}, nil
}

type GraphAddEdgeArgs struct {
	Source     string         `json:"source_name"`
	Target     string         `json:"target_name"`
	Relation   string         `json:"relation"`
	Weight     float64        `json:"weight"`
	Properties map[string]any `json:"properties,omitempty"`
}

type GraphAddEdgeResult struct {
	ID string `json:"id"`
}

func (s *Service) GraphAddEdge(ctx context.Context, args GraphAddEdgeArgs) (GraphAddEdgeResult, error) {
	e, err := s.graphStore.AddEdge(ctx, args.Source, args.Target, args.Relation, args.Weight, args.Properties)
	if err != nil {
		return GraphAddEdgeResult{}, err
	}
	return GraphAddEdgeResult{ID: e.ID}, nil
}

type GraphQueryNeighborsArgs struct {
	NodeName     string `json:"node_name"`
	RelationType string `json:"relation_type,omitempty"`
	Depth        int    `json:"depth,omitempty"`
}

type GraphNeighborEntry struct {
	NodeID     string         `json:"node_id"`
	Label      string         `json:"label"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties,omitempty"`
	Relation   string         `json:"relation"`
	Distance   int            `json:"distance"`
	Weight     float64        `json:"weight"`
}

type GraphQueryNeighborsResult struct {
	Neighbors []GraphNeighborEntry `json:"neighbors"`
}

func (s *Service) GraphQueryNeighbors(ctx context.Context, args GraphQueryNeighborsArgs) (GraphQueryNeighborsResult, error) {
	depth := args.Depth
	if depth == 0 {
		depth = 1
	}
	neighbors, err := s.graphStore.QueryNeighbors(ctx, args.NodeName, args.RelationType, depth)
	if err != nil {
		return GraphQueryNeighborsResult{}, err
	}
	out := make([]GraphNeighborEntry, len(neighbors))
	for i, n := range neighbors {
		out[i] = GraphNeighborEntry{
			NodeID: n.NodeID, Label: n.Label, Name: n.Name, Properties: n.Properties,
			Relation: n.Relation, Distance: n.Distance, Weight: n.Weight,
		}
	}
	return GraphQueryNeighborsResult{Neighbors: out}, nil
}

type GraphFindPathArgs struct {
	StartName string `json:"start_name"`
	EndName   string `json:"end_name"`
	MaxDepth  int    `json:"max_depth,omitempty"`
}

type GraphFindPathResult struct {
	PathFound  bool     `json:"path_found"`
	PathLength int      `json:"path_length"`
	Paths      []string `json:"paths"`
}

func (s *Service) GraphFindPath(ctx context.Context, args GraphFindPathArgs) (GraphFindPathResult, error) {
	maxDepth := args.MaxDepth
	if maxDepth == 0 {
		maxDepth = graph.MaxPathDepth
	}
	p, err := s.graphStore.FindPath(ctx, args.StartName, args.EndName, maxDepth)
	if err != nil {
		return GraphFindPathResult{}, err
	}
	return GraphFindPathResult{PathFound: p.Found, PathLength: p.Length, Paths: p.Nodes}, nil
}

// --- evaluate ---

type EvaluateArgs struct {
	SessionID   string   `json:"session_id,omitempty"`
	InsightID   *int64   `json:"insight_id,omitempty"`
	Query       string   `json:"query"`
	ContextDocs []string `json:"context_docs,omitempty"`
	Answer      string   `json:"answer"`
}

type EvaluateResult struct {
	Reward              float64 `json:"reward"`
	Reasoning           string  `json:"reasoning"`
	ReflectionTriggered bool    `json:"reflection_triggered"`
	Degraded            bool    `json:"degraded"`
	EpisodeID           *int64  `json:"episode_id,omitempty"`
}

// Evaluate runs the judge/reflect/episode pipeline, routing to the real
// judge while the fallback controller is inactive and to the local
// evaluator once it activates — the fallback transition itself is driven
// by ObserveError on the real judge's terminal failure.
func (s *Service) Evaluate(ctx context.Context, args EvaluateArgs) (EvaluateResult, error) {
	degraded := s.fallbackCtl.IsActive(fallback.JudgeComponent)
	j := s.evalJudge1
	if degraded {
		j = s.evalJudge2
	}

	result, err := s.evalLoop.Evaluate(ctx, j, args.SessionID, args.InsightID, args.Query, args.ContextDocs, args.Answer, degraded)
	if err != nil && !degraded {
		if activated, actErr := s.fallbackCtl.ObserveError(ctx, fallback.JudgeComponent, err); actErr == nil && activated {
			result, err = s.evalLoop.Evaluate(ctx, s.evalJudge2, args.SessionID, args.InsightID, args.Query, args.ContextDocs, args.Answer, true)
		}
	}
	if err != nil {
		return EvaluateResult{}, err
	}

	out := EvaluateResult{
		Reward: result.Reward, Reasoning: result.Reasoning,
		ReflectionTriggered: result.ReflectionTriggered, Degraded: result.Degraded,
	}
	if result.EpisodeID != 0 {
		out.EpisodeID = &result.EpisodeID
	}
	return out, nil
}

// Ping answers the liveness check.
func (s *Service) Ping(_ context.Context) string { return "pong" }
