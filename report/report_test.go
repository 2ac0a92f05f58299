package report

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/designref/dbopen"
	"github.com/hazyhaar/designref/history"
	"github.com/hazyhaar/designref/verify"
)

type fixture struct {
	store   *history.Store
	root    string
	entries map[string]*history.Entry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if _, err := db.Exec(history.Schema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	f := &fixture{store: &history.Store{DB: db}, root: t.TempDir(), entries: map[string]*history.Entry{}}

	cand := filepath.Join(f.root, "screenshots", "x1", "login.png")
	if err := os.MkdirAll(filepath.Dir(cand), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cand, []byte("\x89PNG fake"), 0o644); err != nil {
		t.Fatal(err)
	}

	add := func(key, run, ref string, o verify.Outcome, started int64, candidate string) {
		e := &history.Entry{
			RunID:         run,
			Scenario:      "login page matches",
			Reference:     ref,
			Browser:       "chrome",
			Outcome:       o,
			Passed:        o.Passed(),
			Score:         0.25,
			Candidate:     candidate,
			Baseline:      filepath.Join(f.root, "design_reference", "chrome", ref),
			PHashDistance: -1,
			StartedAt:     started,
		}
		if err := f.store.Record(context.Background(), e); err != nil {
			t.Fatal(err)
		}
		f.entries[key] = e
	}
	add("old", "run-1", "nav.png", verify.Matched, 1000, "")
	add("login", "run-2", "login.png", verify.MismatchedBeyondTolerance, 2000, cand)
	add("new", "run-2", "footer.png", verify.NoBaseline, 2001, cand)
	add("escape", "run-2", "evil.png", verify.MismatchedBeyondTolerance, 2002, "/etc/passwd")
	return f
}

func (f *fixture) server(cfg Config) *Server {
	cfg.ArtifactRoots = []string{filepath.Join(f.root, "screenshots"), filepath.Join(f.root, "design_reference")}
	return New(f.store, cfg)
}

func get(t *testing.T, h http.Handler, path string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIndex_LatestRun(t *testing.T) {
	f := newFixture(t)
	rec := get(t, f.server(Config{}).Handler(), "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"run-2", "login.png", "mismatched_beyond_tolerance", "/artifacts/" + f.entries["login"].ID + "/candidate"} {
		if !strings.Contains(body, want) {
			t.Errorf("index missing %q", want)
		}
	}
	if strings.Contains(body, "nav.png") {
		t.Error("index should only list the latest run")
	}

	rec = get(t, f.server(Config{}).Handler(), "/?run=run-1")
	if !strings.Contains(rec.Body.String(), "nav.png") {
		t.Error("run=run-1 should list nav.png")
	}
}

func TestAPI_Results(t *testing.T) {
	f := newFixture(t)
	h := f.server(Config{}).Handler()

	rec := get(t, h, "/api/results?run=run-2&failed=true")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var entries []history.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("failed entries = %d, want 3", len(entries))
	}

	rec = get(t, h, "/api/results?outcome=bogus")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bogus outcome status = %d, want 400", rec.Code)
	}

	rec = get(t, h, "/api/results/"+f.entries["login"].ID)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "login.png") {
		t.Errorf("get result = %d %s", rec.Code, rec.Body)
	}
	if rec := get(t, h, "/api/results/missing"); rec.Code != http.StatusNotFound {
		t.Errorf("missing result status = %d, want 404", rec.Code)
	}

	rec = get(t, h, "/api/stats?run=run-2")
	var st history.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.Total != 3 || st.Failed != 3 {
		t.Errorf("stats = %+v", st)
	}

	rec = get(t, h, "/api/runs")
	var runs []history.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Errorf("runs = %+v", runs)
	}
}

func TestArtifacts(t *testing.T) {
	f := newFixture(t)
	h := f.server(Config{}).Handler()

	rec := get(t, h, "/artifacts/"+f.entries["login"].ID+"/candidate")
	if rec.Code != http.StatusOK {
		t.Fatalf("candidate status = %d: %s", rec.Code, rec.Body)
	}
	if rec.Body.String() != "\x89PNG fake" {
		t.Errorf("candidate body = %q", rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}

	cases := []struct {
		path string
		code int
	}{
		{"/artifacts/" + f.entries["escape"].ID + "/candidate", http.StatusForbidden},
		{"/artifacts/" + f.entries["new"].ID + "/baseline", http.StatusNotFound},
		{"/artifacts/" + f.entries["login"].ID + "/baseline", http.StatusNotFound}, // not on disk
		{"/artifacts/" + f.entries["login"].ID + "/diff", http.StatusNotFound},
		{"/artifacts/" + f.entries["login"].ID + "/secrets", http.StatusBadRequest},
		{"/artifacts/missing/candidate", http.StatusNotFound},
	}
	for _, c := range cases {
		if rec := get(t, h, c.path); rec.Code != c.code {
			t.Errorf("GET %s = %d, want %d", c.path, rec.Code, c.code)
		}
	}
}

func TestBasicAuth(t *testing.T) {
	f := newFixture(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	h := f.server(Config{User: "qa", PasswordHash: string(hash)}).Handler()

	if rec := get(t, h, "/api/runs"); rec.Code != http.StatusUnauthorized {
		t.Errorf("no credentials = %d, want 401", rec.Code)
	} else if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate challenge")
	}
	if rec := get(t, h, "/api/runs", func(r *http.Request) { r.SetBasicAuth("qa", "wrong") }); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password = %d, want 401", rec.Code)
	}
	if rec := get(t, h, "/api/runs", func(r *http.Request) { r.SetBasicAuth("qa", "s3cret") }); rec.Code != http.StatusOK {
		t.Errorf("valid credentials = %d, want 200", rec.Code)
	}
	if rec := get(t, h, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d, want 200 without auth", rec.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	f := newFixture(t)
	rec := get(t, f.server(Config{}).Handler(), "/healthz")
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff")
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("missing CSP")
	}
}

func TestMarkdown(t *testing.T) {
	f := newFixture(t)
	md, err := Markdown(context.Background(), f.store, "run-2")
	if err != nil {
		t.Fatalf("Markdown: %v", err)
	}
	for _, want := range []string{"designref run run-2", "login.png", "footer.png", "|", "file://"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
	if strings.Contains(md, "<table>") {
		t.Error("markdown still contains raw HTML table")
	}

	rec := get(t, f.server(Config{}).Handler(), "/report.md")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "login.png") {
		t.Errorf("/report.md = %d %s", rec.Code, rec.Body)
	}
}

func TestMarkdown_Empty(t *testing.T) {
	db := dbopen.OpenMemory(t)
	if _, err := db.Exec(history.Schema); err != nil {
		t.Fatal(err)
	}
	md, err := Markdown(context.Background(), &history.Store{DB: db}, "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(md, "No verifications recorded") {
		t.Errorf("empty markdown = %q", md)
	}
}

func TestConfined(t *testing.T) {
	roots := []string{"/srv/app/design_reference", "/tmp/screenshots"}
	cases := map[string]bool{
		"/srv/app/design_reference/chrome/a.png": true,
		"/tmp/screenshots/x/a.png":               true,
		"/tmp/screenshots":                       false,
		"/tmp/screenshots/../passwd":             false,
		"/srv/app/design_reference_evil/a.png":   false,
		"relative/a.png":                         false,
	}
	for p, want := range cases {
		if got := confined(roots, p); got != want {
			t.Errorf("confined(%q) = %v, want %v", p, got, want)
		}
	}
}
