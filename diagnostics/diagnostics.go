// Package diagnostics prints what a human needs to act on a failed or
// suspicious screenshot comparison: where the files are and the command that
// accepts the new capture as the reference.
package diagnostics

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
)

// HostRootEnv names the variable holding the host-side path of the
// repository root when the suite runs inside a container.
const HostRootEnv = "HOST_MACHINE_ROOT"

// Severity selects the colour of a mismatch report.
type Severity int

const (
	// Warning marks a difference inside the tolerated band; the step passes.
	Warning Severity = iota
	// Alarm marks a difference that fails the step.
	Alarm
)

const (
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiReset  = "\x1b[0m"
)

func (s Severity) ansi() string {
	if s == Alarm {
		return ansiRed
	}
	return ansiYellow
}

// PathMapper rewrites paths under Root so they point at HostRoot instead.
type PathMapper struct {
	Root     string
	HostRoot string
}

// Host returns p as seen from the host machine. Paths outside Root, or any
// path when HostRoot is unset, are returned unchanged. Root only matches on
// a path-segment boundary: "/app" maps "/app/x" but not "/app-old/x".
func (m PathMapper) Host(p string) string {
	if m.Root == "" || m.HostRoot == "" {
		return p
	}
	root := strings.TrimRight(m.Root, "/")
	if root == "" {
		return p
	}
	if p != root && !strings.HasPrefix(p, root+"/") {
		return p
	}
	return strings.TrimRight(m.HostRoot, "/") + strings.TrimPrefix(p, root)
}

// Mismatch describes a comparison whose score was above the pass band.
type Mismatch struct {
	Candidate  string
	Reference  string
	Diff       string
	DiffExists bool
	Score      float64
}

// NewBaseline describes a capture that has no reference yet.
type NewBaseline struct {
	Candidate string
	Reference string
}

// FormatMismatch renders the mismatch report, one line per element, without
// colour.
func FormatMismatch(m Mismatch, paths PathMapper) string {
	ref := paths.Host(m.Reference)
	cand := paths.Host(m.Candidate)

	var b strings.Builder
	b.WriteString("\nXXXX Screenshot mismatched! XXXX\n")
	fmt.Fprintf(&b, "Reference file: file://%s\n", ref)
	fmt.Fprintf(&b, "Screenshot file: file://%s\n", cand)
	if m.DiffExists {
		fmt.Fprintf(&b, "Diff image: file://%s\n", paths.Host(m.Diff))
	}
	fmt.Fprintf(&b, "Difference : %%%s\n", strconv.FormatFloat(m.Score, 'f', -1, 64))
	b.WriteString("To update the reference screenshot, run:\n")
	fmt.Fprintf(&b, "cp %s %s\n", cand, ref)
	return b.String()
}

// FormatNewBaseline renders the missing-reference report without colour.
func FormatNewBaseline(n NewBaseline, paths PathMapper) string {
	ref := paths.Host(n.Reference)
	cand := paths.Host(n.Candidate)

	var b strings.Builder
	fmt.Fprintf(&b, "A design reference for file://%s does not exist.\n", ref)
	fmt.Fprintf(&b, "To use the current screenshot, run: cp %s %s\n", cand, ref)
	fmt.Fprintf(&b, "To verify the screenshot before copying, ctrl+click file://%s\n", cand)
	return b.String()
}

// Reporter writes diagnostics to an output stream, normally stderr.
type Reporter struct {
	w     io.Writer
	paths PathMapper
	color bool
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithColor forces ANSI colour on or off.
func WithColor(on bool) Option { return func(r *Reporter) { r.color = on } }

// WithHostRoot overrides the HOST_MACHINE_ROOT environment variable.
func WithHostRoot(hostRoot string) Option { return func(r *Reporter) { r.paths.HostRoot = hostRoot } }

// New returns a Reporter writing to w. root is the in-container repository
// root. Colour is enabled when w is a terminal and NO_COLOR is unset.
func New(w io.Writer, root string, opts ...Option) *Reporter {
	if w == nil {
		w = os.Stderr
	}
	r := &Reporter{
		w:     w,
		paths: PathMapper{Root: root, HostRoot: os.Getenv(HostRootEnv)},
		color: isTerminal(w) && os.Getenv("NO_COLOR") == "",
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Paths returns the path mapping used by the reporter.
func (r *Reporter) Paths() PathMapper { return r.paths }

// Mismatch writes a mismatch report coloured by severity.
func (r *Reporter) Mismatch(m Mismatch, sev Severity) {
	r.write(FormatMismatch(m, r.paths), sev.ansi())
}

// NewBaseline writes a missing-reference report, always as an alarm.
func (r *Reporter) NewBaseline(n NewBaseline) {
	r.write(FormatNewBaseline(n, r.paths), ansiRed)
}

func (r *Reporter) write(text, colour string) {
	if !r.color {
		io.WriteString(r.w, text)
		return
	}
	lines := strings.SplitAfter(text, "\n")
	var b strings.Builder
	for _, line := range lines {
		body := strings.TrimSuffix(line, "\n")
		if body != "" {
			b.WriteString(colour + body + ansiReset)
		}
		if strings.HasSuffix(line, "\n") {
			b.WriteByte('\n')
		}
	}
	io.WriteString(r.w, b.String())
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
