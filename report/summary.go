package report

import (
	"context"
	"html/template"
	"net/url"
	"time"

	"github.com/hazyhaar/designref/history"
)

type summary struct {
	RunID     string
	Runs      []*history.Run
	Stats     *history.Stats
	Rows      []row
	Generated string
}

type row struct {
	*history.Entry
	Started   string
	Candidate template.URL
	Baseline  template.URL
	Diff      template.URL
}

// linkFunc maps an entry artifact to the URL the summary links to, or ""
// when the entry has no such artifact.
type linkFunc func(e *history.Entry, kind string) template.URL

func serverLinks(e *history.Entry, kind string) template.URL {
	if artifactPath(e, kind) == "" {
		return ""
	}
	return template.URL("/artifacts/" + url.PathEscape(e.ID) + "/" + kind)
}

func fileLinks(e *history.Entry, kind string) template.URL {
	p := artifactPath(e, kind)
	if p == "" {
		return ""
	}
	return template.URL((&url.URL{Scheme: "file", Path: p}).String())
}

// buildSummary gathers the data for one run. An empty runID selects the
// most recent run.
func buildSummary(ctx context.Context, src Source, runID string, link linkFunc) (*summary, error) {
	runs, err := src.Runs(ctx, 20)
	if err != nil {
		return nil, err
	}
	if runID == "" && len(runs) > 0 {
		runID = runs[0].ID
	}
	sum := &summary{
		RunID:     runID,
		Runs:      runs,
		Generated: time.Now().UTC().Format(time.RFC3339),
	}
	if runID == "" {
		return sum, nil
	}

	if sum.Stats, err = src.Stats(ctx, runID); err != nil {
		return nil, err
	}
	entries, err := src.List(ctx, history.Filter{RunID: runID, Limit: 10_000})
	if err != nil {
		return nil, err
	}
	// List is newest first; the report reads in execution order.
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		sum.Rows = append(sum.Rows, row{
			Entry:     e,
			Started:   time.UnixMilli(e.StartedAt).UTC().Format("15:04:05"),
			Candidate: link(e, "candidate"),
			Baseline:  link(e, "baseline"),
			Diff:      link(e, "diff"),
		})
	}
	return sum, nil
}

var reportTmpl = template.Must(template.New("report").Parse(`
<h1>designref run {{if .RunID}}{{.RunID}}{{else}}(none){{end}}</h1>
{{with .Stats}}<p>{{.Total}} verifications: {{.Passed}} passed, {{.Failed}} failed, {{.Retries}} retries.</p>{{end}}
{{if .Rows}}
<table>
<thead><tr><th>Time</th><th>Scenario</th><th>Reference</th><th>Browser</th><th>Outcome</th><th>Score</th><th>Retries</th><th>pHash</th><th>Artifacts</th></tr></thead>
<tbody>
{{range .Rows}}<tr>
<td>{{.Started}}</td>
<td>{{.Scenario}}</td>
<td>{{.Reference}}</td>
<td>{{.Browser}}</td>
<td>{{.Outcome}}</td>
<td>{{printf "%.5g" .Score}}</td>
<td>{{.Retries}}</td>
<td>{{if ge .PHashDistance 0}}{{.PHashDistance}}{{else}}-{{end}}</td>
<td>{{if .Candidate}}<a href="{{.Candidate}}">candidate</a> {{end}}{{if .Baseline}}<a href="{{.Baseline}}">baseline</a> {{end}}{{if .Diff}}<a href="{{.Diff}}">diff</a>{{end}}</td>
</tr>
{{end}}</tbody>
</table>
{{else}}
<p>No verifications recorded.</p>
{{end}}`))

var pageTmpl = template.Must(template.Must(reportTmpl.Clone()).New("page").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>designref</title>
<style>
body{font-family:system-ui,sans-serif;margin:2rem;color:#222}
table{border-collapse:collapse}
th,td{border:1px solid #ccc;padding:.3rem .6rem;text-align:left}
nav a{margin-right:.8rem}
</style></head><body>
{{if .Runs}}<nav>{{range .Runs}}<a href="/?run={{.ID}}">{{.ID}}</a>{{if .Failed}} ({{.Failed}} failed){{end}} {{end}}</nav>{{end}}
{{template "report" .}}
<footer><small>generated {{.Generated}} &middot; <a href="/report.md?run={{.RunID}}">markdown</a></small></footer>
</body></html>`))
