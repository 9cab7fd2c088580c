package protocol

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// resourceHandler reads one memory:// resource, returning its content
// already JSON-encoded — the same dispatch-by-name shape tools.go uses,
// parameterized on query string instead of JSON args since resource
// reads carry their filters in the URI.
type resourceHandler func(ctx context.Context, svc *Service, values url.Values) (any, error)

var resourceHandlers = map[string]resourceHandler{
	"memory://l2-insights": func(ctx context.Context, svc *Service, v url.Values) (any, error) {
		return svc.ListL2Insights(ctx, L2InsightsQuery{
			Query:         v.Get("query"),
			TopK:          intParam(v, "top_k", 0),
			FidelityMin:   floatPtrParam(v, "fidelity_min"),
			CreatedAfter:  timePtrParam(v, "created_after"),
			CreatedBefore: timePtrParam(v, "created_before"),
		})
	},
	"memory://working-memory": func(ctx context.Context, svc *Service, _ url.Values) (any, error) {
		return svc.ListWorkingMemory(ctx)
	},
	"memory://episode-memory": func(ctx context.Context, svc *Service, v url.Values) (any, error) {
		return svc.ListEpisodeMemory(ctx, EpisodeMemoryQuery{
			Query:         v.Get("query"),
			TopK:          intParam(v, "top_k", 0),
			MinSimilarity: floatParam(v, "min_similarity", 0),
			RewardMin:     floatPtrParam(v, "reward_min"),
			DaysBack:      intParam(v, "days_back", 0),
		})
	},
	"memory://l0-raw": func(ctx context.Context, svc *Service, v url.Values) (any, error) {
		return svc.ListRawDialogue(ctx, L0Query{
			SessionID: v.Get("session_id"),
			Speaker:   v.Get("speaker"),
			Limit:     intParam(v, "limit", 0),
			Ascending: v.Get("order") == "asc",
		})
	},
	"memory://stale-memory": func(ctx context.Context, svc *Service, v url.Values) (any, error) {
		return svc.ListStaleMemory(ctx, StaleMemoryQuery{
			Reason:        v.Get("reason"),
			DaysBack:      intParam(v, "days_back", 0),
			ImportanceMin: floatPtrParam(v, "importance_min"),
			Limit:         intParam(v, "limit", 0),
		})
	},
}

func intParam(v url.Values, key string, def int) int {
	n, err := strconv.Atoi(v.Get(key))
	if err != nil {
		return def
	}
	return n
}

func floatParam(v url.Values, key string, def float64) float64 {
	f, err := strconv.ParseFloat(v.Get(key), 64)
	if err != nil {
		return def
	}
	return f
}

func floatPtrParam(v url.Values, key string) *float64 {
	raw := v.Get(key)
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &f
}

func timePtrParam(v url.Values, key string) *time.Time {
	raw := v.Get(key)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}

// registerResources binds every memory:// resource. Each
// resource's path identifies the handler; its query string carries the
// filters, parsed uniformly above instead of relying on per-resource
// templated routing.
func registerResources(server *mcpsdk.Server, svc *Service) {
	for path, handler := range resourceHandlers {
		path, handler := path, handler
		server.AddResource(&mcpsdk.Resource{
			URI:      path,
			Name:     path,
			MIMEType: "application/json",
		}, func(ctx context.Context, req *mcpsdk.ReadResourceRequest) (*mcpsdk.ReadResourceResult, error) {
			parsed, err := url.Parse(req.Params.URI)
			if err != nil {
				return nil, fmt.Errorf("parse resource uri: %w", err)
			}
			out, err := handler(ctx, svc, parsed.Query())
			if err != nil {
				return nil, err
			}
			return &mcpsdk.ReadResourceResult{
				Contents: []*mcpsdk.ResourceContents{{
					URI:      req.Params.URI,
					MIMEType: "application/json",
					Text:     mustJSON(out),
				}},
			}, nil
		})
	}
}
