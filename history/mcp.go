package history

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/designref/kit"
)

// RegisterMCP registers the history query tools on an MCP server.
func (s *Store) RegisterMCP(srv *mcp.Server) {
	s.registerResultsTool(srv)
	s.registerResultTool(srv)
	s.registerStatsTool(srv)
}

// decodeArgs unmarshals tool arguments into a fresh T. Missing arguments
// decode to the zero value.
func decodeArgs[T any](req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r T
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
	}
	return &kit.MCPDecodeResult{Request: &r}, nil
}

// --- results ---

type resultsRequest struct {
	RunID     string `json:"run_id,omitempty"`
	Reference string `json:"reference,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	Failed    bool   `json:"failed,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

func (s *Store) registerResultsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "designref_results",
		Description: "List recorded design-reference verifications, most recent first.",
		InputSchema: kit.InputSchema(map[string]any{
			"run_id":    map[string]any{"type": "string", "description": "Restrict to one suite run ('latest' for the most recent)"},
			"reference": map[string]any{"type": "string", "description": "Reference file name, e.g. login-button.png"},
			"outcome": map[string]any{"type": "string", "enum": []any{
				"matched", "mismatched_within_tolerance", "mismatched_beyond_tolerance", "no_baseline", "retries_exhausted",
			}, "description": "Filter by outcome"},
			"failed": map[string]any{"type": "boolean", "description": "Only failing verifications"},
			"limit":  map[string]any{"type": "integer", "description": "Max results (default 50)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*resultsRequest)
		runID, err := s.resolveRun(ctx, r.RunID)
		if err != nil {
			return nil, err
		}
		entries, err := s.List(ctx, Filter{
			RunID:     runID,
			Reference: r.Reference,
			Outcome:   r.Outcome,
			Failed:    r.Failed,
			Limit:     r.Limit,
		})
		if err != nil {
			return nil, err
		}
		if entries == nil {
			entries = []*Entry{}
		}
		return entries, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeArgs[resultsRequest])
}

// --- result ---

type resultRequest struct {
	ID string `json:"id"`
}

func (s *Store) registerResultTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "designref_result",
		Description: "Get one verification with its attempts, scores and artifact paths.",
		InputSchema: kit.InputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Verification ID"},
		}, []string{"id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		return s.Get(ctx, req.(*resultRequest).ID)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeArgs[resultRequest])
}

// --- stats ---

type statsRequest struct {
	RunID string `json:"run_id,omitempty"`
}

func (s *Store) registerStatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "designref_stats",
		Description: "Pass/fail counts per outcome for a run, or across all runs.",
		InputSchema: kit.InputSchema(map[string]any{
			"run_id": map[string]any{"type": "string", "description": "Suite run ID ('latest' for the most recent, empty for all)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		runID, err := s.resolveRun(ctx, req.(*statsRequest).RunID)
		if err != nil {
			return nil, err
		}
		return s.Stats(ctx, runID)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeArgs[statsRequest])
}

func (s *Store) resolveRun(ctx context.Context, runID string) (string, error) {
	if runID == "latest" {
		return s.LatestRun(ctx)
	}
	return runID, nil
}
