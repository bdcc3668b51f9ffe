// Package report renders smoke-run progress and the final summary for a terminal.
//
// Output is styled with lipgloss; a renderer bound to the writer drops colors
// when the writer is not a terminal, so logs and test buffers stay plain.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"

	smoke "github.com/st-keller/galacash-smoke"
	"github.com/st-keller/galacash-smoke/export"
	"github.com/st-keller/galacash-smoke/stats"
	"github.com/st-keller/galacash-smoke/transport"
	"github.com/st-keller/galacash-smoke/types"
)

const (
	rule          = "============================================================"
	progressEvery = 10
	previewKeys   = 4
)

// Styles used by a Printer.
type Styles struct {
	Title   lipgloss.Style
	Section lipgloss.Style
	OK      lipgloss.Style
	Fail    lipgloss.Style
	Warn    lipgloss.Style
	Muted   lipgloss.Style
	Tip     lipgloss.Style
}

// NewStyles builds the palette for r.
func NewStyles(r *lipgloss.Renderer) Styles {
	return Styles{
		Title: r.NewStyle().
			Foreground(lipgloss.Color("#8BC34A")).
			Bold(true),
		Section: r.NewStyle().
			Foreground(lipgloss.Color("#2196F3")).
			Bold(true),
		OK: r.NewStyle().
			Foreground(lipgloss.Color("#8BC34A")),
		Fail: r.NewStyle().
			Foreground(lipgloss.Color("#e53935")).
			Bold(true),
		Warn: r.NewStyle().
			Foreground(lipgloss.Color("#FFC107")),
		Muted: r.NewStyle().
			Foreground(lipgloss.Color("#6c7a89")),
		Tip: r.NewStyle().
			Foreground(lipgloss.Color("#FFC107")).
			Italic(true),
	}
}

// Printer writes the human-readable run log. It satisfies flow.Reporter.
type Printer struct {
	mu       sync.Mutex
	w        io.Writer
	verbose  bool
	styles   Styles
	requests int
}

// New returns a Printer writing to w.
func New(w io.Writer, verbose bool) *Printer {
	return &Printer{
		w:       w,
		verbose: verbose,
		styles:  NewStyles(lipgloss.NewRenderer(w)),
	}
}

func (p *Printer) println(a ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, a...)
}

func (p *Printer) printf(format string, a ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, a...)
}

// Banner prints the run header.
func (p *Printer) Banner(baseURL string, verbose bool, saveDir string) {
	p.println(rule)
	p.println(p.styles.Title.Render("GALACASH API - COMPREHENSIVE SMOKE TEST"))
	p.println(rule)
	p.printf("BASE_URL: %s\n", baseURL)
	p.printf("VERBOSE:  %t\n", verbose)
	if saveDir != "" {
		p.printf("SAVE_DIR: %s\n", saveDir)
	}
	p.println(rule)
}

// Prompt asks the operator to press ENTER.
func (p *Printer) Prompt() {
	p.println()
	p.println(p.styles.Warn.Render("[PAUSE] Press ENTER when ready to start (ensure no recent login attempts)..."))
}

// Flow prints a flow header.
func (p *Printer) Flow(title string) {
	p.println()
	p.println(rule)
	p.println(p.styles.Title.Render(title))
	p.println(rule)
}

// Section prints a bracketed section name.
func (p *Printer) Section(name string) {
	p.println()
	p.println(p.styles.Section.Render("[" + name + "]"))
}

// Done prints a flow completion line.
func (p *Printer) Done(message string) {
	p.println()
	p.println(p.styles.OK.Render("[OK] " + message))
}

// Saved reports a written export.
func (p *Printer) Saved(f export.File) {
	p.println(p.styles.Muted.Render(fmt.Sprintf("  [SAVE] %s (%d bytes)", f.Path, f.Size)))
}

// Info prints an unstyled line.
func (p *Printer) Info(format string, a ...interface{}) {
	p.printf(format+"\n", a...)
}

// Warn prints a warning line.
func (p *Printer) Warn(message string) {
	p.println(p.styles.Warn.Render("[WARN] " + message))
}

// RequestLogged prints one finished request: every request in verbose mode,
// otherwise a progress line every 10 requests plus details of failures.
func (p *Printer) RequestLogged(res stats.Result) {
	p.mu.Lock()
	p.requests++
	n := p.requests
	p.mu.Unlock()

	if p.verbose {
		icon := p.styles.OK.Render("[OK]")
		if !res.OK() {
			icon = p.styles.Fail.Render("[FAIL]")
		}
		preview, ok := types.PreviewJSON(res.RawBody, previewKeys)
		if !ok {
			preview = compact(types.Preview(res.Body, previewKeys))
		}
		p.printf("  %s [%d] %s (%.0f ms) -> %s\n",
			icon, res.StatusCode, res.Title, ms(res.Latency), preview)
		return
	}

	if n%progressEvery == 0 {
		p.println(p.styles.Muted.Render(fmt.Sprintf("  ... %d requests completed", n)))
	}
	if res.StatusCode >= 400 {
		p.printf("  %s [%d] %s %s\n", p.styles.Fail.Render("[FAIL]"), res.StatusCode, res.Method, res.Path)
		if res.Params != "" {
			p.printf("     Params: %s\n", res.Params)
		}
		p.printf("     Error: %s\n", indented(res.Body))
	}
}

// Summary prints overall and per-category statistics.
func (p *Printer) Summary(s stats.Summary, saveDir string) {
	p.println()
	p.println(rule)
	p.println(p.styles.Title.Render("TEST SUMMARY"))
	p.println(rule)

	p.println()
	p.println("[STATS] Overall Statistics:")
	p.printf("  Total Requests:     %d\n", s.Total)
	p.printf("  %s Successful:       %d (%.1f%%)\n", p.styles.OK.Render("[OK]"), s.Successful, s.SuccessRate())
	p.printf("  %s Failed:           %d\n", p.styles.Fail.Render("[FAIL]"), s.Failed)
	p.printf("  [TIME] Total Time:       %.0f ms\n", ms(s.TotalTime))
	p.printf("  [TIME] Average Time:     %.0f ms/request\n", ms(s.Average()))

	if len(s.Categories) > 0 {
		p.println()
		p.println("[CATEGORY] By Category:")
		for _, c := range s.Categories {
			p.printf("  %-20s %3d requests  %6.0f ms total  %5.0f ms avg  %5.0f ms p95\n",
				c.Name, c.Count, ms(c.Total), ms(c.Average()), ms(c.P95))
		}
	}

	if len(s.Failures) > 0 {
		p.println()
		p.println("[FAIL] Recent failures:")
		for _, f := range s.Failures {
			line := fmt.Sprintf("  [%d] %s", f.StatusCode, f.Title)
			if f.Params != "" {
				line += " " + f.Params
			}
			if f.RequestID != "" {
				line += " (request " + f.RequestID + ")"
			}
			p.println(p.styles.Fail.Render(line))
		}
	}

	if saveDir != "" {
		p.println()
		p.printf("[SAVE] Exports saved to: %s\n", saveDir)
	}
	p.println()
}

// Certificate prints the API server certificate's validity.
func (p *Printer) Certificate(info transport.CertificateInfo) {
	line := fmt.Sprintf("[TLS] Server certificate %s valid until %s (%d days left)",
		info.Subject, info.ValidUntil.UTC().Format("2006-01-02"), info.DaysUntilExpiry)
	switch {
	case info.IsExpired:
		p.println(p.styles.Fail.Render(fmt.Sprintf("[TLS] Server certificate %s EXPIRED on %s",
			info.Subject, info.ValidUntil.UTC().Format("2006-01-02"))))
	case info.ExpiryWarning:
		p.println(p.styles.Warn.Render(line))
	default:
		p.println(line)
	}
}

// Verdict prints the final pass/fail line for failed requests.
func (p *Printer) Verdict(failed int) {
	if failed == 0 {
		p.println(p.styles.OK.Render("[OK] All tests passed!"))
		return
	}
	p.println(p.styles.Warn.Render(fmt.Sprintf("[WARN] %d request(s) failed", failed)))
}

// Failure prints an aborted run's error and any matching hint.
func (p *Printer) Failure(err error) {
	p.println()
	p.println(p.styles.Fail.Render(fmt.Sprintf("[ERROR] Smoke test failed: %v", err)))
	if tip := Tips(err); tip != "" {
		p.println()
		p.println(p.styles.Tip.Render(tip))
	}
}

// Tips returns a hint for well-known failure causes, or "".
func Tips(err error) string {
	if err == nil {
		return ""
	}

	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return strings.Join([]string{
			"TIP: The API server is not running!",
			"   Start it with: pnpm dev",
			"   Then run tests again: pnpm test:smoke",
		}, "\n")
	case errors.As(err, &dnsErr):
		return "TIP: Cannot resolve hostname. Check BASE_URL setting."
	case errors.Is(err, smoke.ErrRateLimited), smoke.IsStatus(err, 429):
		return strings.Join([]string{
			"TIP: Rate limit exceeded!",
			"   Wait a minute and try again, or check rate limit configuration.",
			"   Consider raising the request delay (SMOKE_REQUEST_DELAY).",
		}, "\n")
	}
	return ""
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func compact(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func indented(v interface{}) string {
	b, err := json.MarshalIndent(v, "     ", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
