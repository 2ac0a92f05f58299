package history

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/designref/verify"
)

var testImpl = &mcp.Implementation{Name: "designref-test", Version: "0.1.0"}

// mcpSession registers the history tools on a server and returns a
// connected client session.
func mcpSession(t *testing.T) (*Store, *mcp.ClientSession) {
	t.Helper()
	s := testStore(t)

	srv := mcp.NewServer(testImpl, nil)
	s.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()

	go func() {
		_ = srv.Run(ctx, serverT)
	}()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })

	return s, session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return tc.Text, result.IsError
}

func seed(t *testing.T, s *Store) []*Entry {
	t.Helper()
	entries := []*Entry{
		entry("run-1", "a.png", verify.Matched, 1000),
		entry("run-2", "a.png", verify.Matched, 2000),
		entry("run-2", "b.png", verify.NoBaseline, 2001),
	}
	for _, e := range entries {
		if err := s.Record(context.Background(), e); err != nil {
			t.Fatal(err)
		}
	}
	return entries
}

func TestMCP_Results(t *testing.T) {
	s, session := mcpSession(t)
	seed(t, s)

	text, isErr := callTool(t, session, "designref_results", map[string]any{"run_id": "latest", "failed": true})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var got []Entry
	if err := json.Unmarshal([]byte(text), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 1 || got[0].Reference != "b.png" || got[0].Outcome != verify.NoBaseline {
		t.Errorf("results = %+v", got)
	}
}

func TestMCP_Results_Empty(t *testing.T) {
	_, session := mcpSession(t)
	text, isErr := callTool(t, session, "designref_results", map[string]any{})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	if text != "[]" {
		t.Errorf("empty results = %s, want []", text)
	}
}

func TestMCP_Result(t *testing.T) {
	s, session := mcpSession(t)
	entries := seed(t, s)

	text, isErr := callTool(t, session, "designref_result", map[string]any{"id": entries[0].ID})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var got Entry
	if err := json.Unmarshal([]byte(text), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != entries[0].ID || got.RunID != "run-1" {
		t.Errorf("result = %+v", got)
	}

	_, isErr = callTool(t, session, "designref_result", map[string]any{"id": "nope"})
	if !isErr {
		t.Error("unknown id should be a tool error")
	}
}

func TestMCP_Stats(t *testing.T) {
	s, session := mcpSession(t)
	seed(t, s)

	text, isErr := callTool(t, session, "designref_stats", map[string]any{"run_id": "run-2"})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var st Stats
	if err := json.Unmarshal([]byte(text), &st); err != nil {
		t.Fatal(err)
	}
	if st.Total != 2 || st.Passed != 1 || st.Failed != 1 {
		t.Errorf("stats = %+v", st)
	}
}
