package prometheus

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strings"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

// Source is what the exporter reads on every render. *goGuard.Engine satisfies it.
type Source interface {
	MetricsSnapshot() goGuard.MetricsSnapshot
	AuditDropped() uint64
}

type sessionCounter interface {
	ActiveSessions() int
}

type Exporter struct {
	source Source
}

func NewExporter(engine *goGuard.Engine) *Exporter {
	return &Exporter{source: engine}
}

func NewExporterFromSource(source Source) *Exporter {
	return &Exporter{source: source}
}

// Handler streams the exposition on every request.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = p.WriteTo(w)
	})
}

// Render returns the exposition as a string.
func (p *Exporter) Render() string {
	var b strings.Builder
	_, _ = p.WriteTo(&b)
	return b.String()
}

// WriteTo writes the current metrics in text exposition format. Nothing is
// written while metrics are disabled and no audit event has been dropped.
func (p *Exporter) WriteTo(w io.Writer) (int64, error) {
	if p == nil || p.source == nil {
		return 0, nil
	}
	snap := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snap.Counters) == 0 && len(snap.Histograms) == 0 && dropped == 0 {
		return 0, nil
	}

	e := &exposition{w: bufio.NewWriter(w)}
	for _, def := range internaldefs.CounterDefs {
		e.family(def.Name, def.Help, "counter")
		e.sample(def.Name, "", snap.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		if raw, ok := snap.Histograms[def.ID]; ok {
			e.histogram(def, internaldefs.Cumulative(raw))
		}
	}

	e.family("goguard_audit_dropped_total", "Audit events dropped under backpressure.", "counter")
	e.sample("goguard_audit_dropped_total", "", dropped)

	if sc, ok := p.source.(sessionCounter); ok {
		e.family("goguard_sessions_active", "Client sessions currently open.", "gauge")
		e.sample("goguard_sessions_active", "", uint64(max(sc.ActiveSessions(), 0)))
	}
	return e.flush()
}

// exposition accumulates the first write error and the byte count.
type exposition struct {
	w   *bufio.Writer
	n   int64
	err error
}

var helpEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`)

func (e *exposition) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	n, err := fmt.Fprintf(e.w, format, args...)
	e.n += int64(n)
	e.err = err
}

func (e *exposition) family(name, help, kind string) {
	e.printf("# HELP %s %s\n# TYPE %s %s\n", name, helpEscaper.Replace(help), name, kind)
}

func (e *exposition) sample(name, labels string, v uint64) {
	e.printf("%s%s %d\n", name, labels, v)
}

func (e *exposition) histogram(def internaldefs.HistogramDef, cum internaldefs.Buckets) {
	e.family(def.Name, def.Help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		e.sample(def.Name+"_bucket", `{le="`+le+`"}`, cum[i])
	}
	e.sample(def.Name+"_count", "", cum[len(cum)-1])
	// The engine keeps bucket counts only.
	e.sample(def.Name+"_sum", "", 0)
}

func (e *exposition) flush() (int64, error) {
	if e.err == nil {
		e.err = e.w.Flush()
	}
	return e.n, e.err
}
