package cli

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	json "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/alcrishub/postman-runtime/internal/executor"
	"github.com/alcrishub/postman-runtime/internal/filter"
	"github.com/alcrishub/postman-runtime/internal/runner"
	"github.com/alcrishub/postman-runtime/internal/types"
)

// ANSI color codes
const (
	colorReset  = "\x1b[0m"
	colorRed    = "\x1b[31m"
	colorGreen  = "\x1b[32m"
	colorYellow = "\x1b[33m"
	colorDim    = "\x1b[2m"
)

// Report is the serializable outcome of a run
type Report struct {
	RunID           string       `json:"runId" yaml:"runId"`
	Collection      string       `json:"collection" yaml:"collection"`
	StartedAt       time.Time    `json:"startedAt" yaml:"startedAt"`
	Duration        string       `json:"duration" yaml:"duration"`
	CompletionError string       `json:"completionError,omitempty" yaml:"completionError,omitempty"`
	Failed          int          `json:"failed" yaml:"failed"`
	Items           []ItemReport `json:"items" yaml:"items"`
}

// ItemReport describes one executed item
type ItemReport struct {
	Index           int                   `json:"index" yaml:"index"`
	Name            string                `json:"name" yaml:"name"`
	Method          string                `json:"method,omitempty" yaml:"method,omitempty"`
	URL             string                `json:"url,omitempty" yaml:"url,omitempty"`
	Protocol        string                `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	RequestHeaders  []types.Header        `json:"requestHeaders,omitempty" yaml:"requestHeaders,omitempty"`
	StatusCode      int                   `json:"statusCode,omitempty" yaml:"statusCode,omitempty"`
	Status          string                `json:"status,omitempty" yaml:"status,omitempty"`
	HTTPVersion     string                `json:"httpVersion,omitempty" yaml:"httpVersion,omitempty"`
	Duration        string                `json:"duration,omitempty" yaml:"duration,omitempty"`
	Size            int                   `json:"size,omitempty" yaml:"size,omitempty"`
	ResponseHeaders []types.Header        `json:"responseHeaders,omitempty" yaml:"responseHeaders,omitempty"`
	Body            interface{}           `json:"body,omitempty" yaml:"body,omitempty"`
	Trace           *types.ExecutionTrace `json:"trace,omitempty" yaml:"trace,omitempty"`
	Error           string                `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewReport builds a report; full adds response headers, bodies and traces
func NewReport(name string, result *runner.RunResult, full bool) *Report {
	r := &Report{
		RunID:      result.ID,
		Collection: name,
		StartedAt:  result.StartedAt,
		Duration:   executor.FormatDuration(result.Duration),
		Failed:     result.Failed(),
		Items:      make([]ItemReport, 0, len(result.Records)),
	}
	if result.CompletionError != nil {
		r.CompletionError = result.CompletionError.Error()
	}
	for _, rec := range result.Records {
		r.Items = append(r.Items, itemReport(rec, full))
	}
	return r
}

func itemReport(rec runner.ExecutionRecord, full bool) ItemReport {
	item := ItemReport{Index: rec.Index, Name: rec.Name}
	if rec.RequestError != nil {
		item.Error = rec.RequestError.Error()
	}
	if req := rec.Request; req != nil {
		item.Method = req.Method()
		item.URL = req.URL()
		item.Protocol = req.Protocol()
		for _, h := range req.Headers().Transmitted() {
			item.RequestHeaders = append(item.RequestHeaders, types.Header{Key: h.Key, Value: h.Value})
		}
	}
	if resp := rec.Response; resp != nil {
		item.StatusCode = resp.Code
		item.Status = resp.Status
		item.HTTPVersion = resp.HTTPVersion
		item.Duration = executor.FormatDuration(resp.ResponseTime)
		item.Size = resp.Size
		if full {
			item.ResponseHeaders = resp.Headers
			item.Body = bodyValue(resp.Body)
			item.Trace = rec.Trace
		}
	}
	return item
}

// bodyValue embeds JSON bodies as values and everything else as text
func bodyValue(body []byte) interface{} {
	if len(body) == 0 {
		return nil
	}
	var v interface{}
	if json.Valid(body) && json.Unmarshal(body, &v) == nil {
		return v
	}
	if utf8.Valid(body) {
		return string(body)
	}
	return fmt.Sprintf("<%s binary>", executor.FormatSize(len(body)))
}

func writeReport(w io.Writer, report *Report, format, expr string) error {
	var v interface{} = report
	if expr != "" {
		out, err := filter.SearchValue(report, expr)
		if err != nil {
			return err
		}
		v = out
	}
	return writeValue(w, v, format)
}

// writeValue encodes v as yaml, or indented json for any other format
func writeValue(w io.Writer, v interface{}, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
}

// textPrinter streams one block per item as the run progresses
type textPrinter struct {
	w    io.Writer
	full bool
}

func (p *textPrinter) OnStart() {}

func (p *textPrinter) OnDone(error) {}

func (p *textPrinter) OnItem(ev runner.ItemEvent) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s[%d]%s %s\n", colorDim, ev.Index, colorReset, ev.Name)
	if ev.Request != nil {
		fmt.Fprintf(&sb, "  %s %s\n", ev.Request.Method(), ev.Request.URL())
	}

	if resp := ev.Response; resp != nil {
		fmt.Fprintf(&sb, "  %s%d %s%s  HTTP/%s | %s | %s\n",
			statusColor(resp.Code), resp.Code, strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprint(resp.Code))), colorReset,
			resp.HTTPVersion, executor.FormatDuration(resp.ResponseTime), executor.FormatSize(resp.Size))

		if p.full {
			if ev.Trace != nil && len(ev.Trace.Request.Headers) > 0 {
				sb.WriteString("\n  Request headers:\n")
				for _, h := range ev.Trace.Request.Headers {
					fmt.Fprintf(&sb, "    %s: %s\n", h.Key, h.Value)
				}
			}
			if len(resp.Headers) > 0 {
				sb.WriteString("\n  Response headers:\n")
				for _, h := range resp.Headers {
					fmt.Fprintf(&sb, "    %s: %s\n", h.Key, h.Value)
				}
			}
			if len(resp.Body) > 0 {
				sb.WriteString("\n")
				sb.WriteString(textBody(resp.Body))
				sb.WriteString("\n")
			}
		}
	}

	if ev.Err != nil {
		fmt.Fprintf(&sb, "  %sError: %s%s\n", colorRed, ev.Err, colorReset)
	}
	fmt.Fprintln(p.w, sb.String())
}

func textBody(body []byte) string {
	switch v := bodyValue(body).(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return string(body)
		}
		return string(data)
	}
}

func writeSummary(w io.Writer, result *runner.RunResult) {
	failed := result.Failed()
	color := colorGreen
	if failed > 0 || result.CompletionError != nil {
		color = colorRed
	}
	fmt.Fprintf(w, "%s%d items, %d failed%s in %s\n",
		color, len(result.Records), failed, colorReset, executor.FormatDuration(result.Duration))
	if result.CompletionError != nil {
		fmt.Fprintf(w, "%sRun stopped: %s%s\n", colorRed, result.CompletionError, colorReset)
	}
}

func statusColor(status int) string {
	switch {
	case executor.IsSuccessStatus(status):
		return colorGreen
	case executor.IsClientErrorStatus(status), executor.IsServerErrorStatus(status):
		return colorRed
	default:
		return colorYellow
	}
}
