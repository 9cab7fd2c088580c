package protocol

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tarsy-labs/cogmem/pkg/cogmemerr"
	"github.com/tarsy-labs/cogmem/pkg/redact"
)

// errorEnvelope is the JSON body returned to the client on a failed
// tool call.
type errorEnvelope struct {
	Error   string `json:"error"`
	Details string `json:"details"`
	Tool    string `json:"tool"`
}

// toCallToolResult converts err into the structured error envelope as
// tool content — no error ever escapes the process unenveloped. Details
// are redacted: a pool or client error can carry the DSN or an API key
// in its text.
func toCallToolResult(tool string, err error) *mcpsdk.CallToolResult {
	envelope := errorEnvelope{Error: cogmemerr.Kind(err), Details: redact.String(err.Error()), Tool: tool}
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: mustJSON(envelope)}},
	}
}

// bindTool is the single generic dispatch point every tool registers
// through — one implementation parameterized over each tool's typed
// args/result rather than thirteen hand-copied handler bodies.
func bindTool[In, Out any](server *mcpsdk.Server, name, description string, fn func(ctx context.Context, in In) (Out, error)) {
	mcpsdk.AddTool(server, &mcpsdk.Tool{Name: name, Description: description},
		func(ctx context.Context, _ *mcpsdk.CallToolRequest, in In) (*mcpsdk.CallToolResult, Out, error) {
			out, err := fn(ctx, in)
			if err != nil {
				var zero Out
				return toCallToolResult(name, err), zero, nil
			}
			return nil, out, nil
		})
}

// pingIn/pingOut give the zero-argument ping tool a schema-bearing
// shape; the SDK derives each tool's JSON schema from these types.
type pingIn struct{}
type pingOut struct {
	Status string `json:"status"`
}

// registerTools binds every exposed tool to the server through
// bindTool, keyed by name for tools/list and tools/call dispatch.
func registerTools(server *mcpsdk.Server, svc *Service) {
	bindTool(server, "store_raw_dialogue", "Persist one raw dialogue turn into L0 storage.", svc.StoreRawDialogue)
	bindTool(server, "compress_to_l2_insight", "Compress source turns into a durable L2 insight.", svc.CompressToL2Insight)
	bindTool(server, "hybrid_search", "Run semantic+keyword hybrid search over L2 insights.", svc.HybridSearch)
	bindTool(server, "update_working_memory", "Upsert an item into bounded working memory.", svc.UpdateWorkingMemory)
	bindTool(server, "store_episode", "Store a reflection-triggered episode.", svc.StoreEpisode)
	bindTool(server, "store_dual_judge_scores", "Score a document set with both judge configurations and compute agreement.", svc.StoreDualJudgeScores)
	bindTool(server, "evaluate", "Run the judge/reflect/episode evaluation pipeline.", svc.Evaluate)
	bindTool(server, "get_golden_test_results", "Run the fixed retrieval-quality benchmark and report drift.", func(ctx context.Context, _ pingIn) (GetGoldenTestResultsResult, error) {
		return svc.GetGoldenTestResults(ctx)
	})
	bindTool(server, "graph_add_node", "Upsert a graph node by name.", svc.GraphAddNode)
	bindTool(server, "graph_add_edge", "Upsert a directed, weighted graph edge.", svc.GraphAddEdge)
	bindTool(server, "graph_query_neighbors", "BFS outward from a node up to a depth bound.", svc.GraphQueryNeighbors)
	bindTool(server, "graph_find_path", "Find the shortest path between two nodes within a budget.", svc.GraphFindPath)
	bindTool(server, "ping", "Liveness check.", func(ctx context.Context, _ pingIn) (pingOut, error) {
		return pingOut{Status: svc.Ping(ctx)}, nil
	})
}
