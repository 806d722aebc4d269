package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/alcrishub/postman-runtime/internal/executor"
	"github.com/alcrishub/postman-runtime/internal/history"
)

// HistoryOptions selects what the history command prints
type HistoryOptions struct {
	DatabasePath string
	Limit        int
	RunID        string // print the executions of one run
	Stats        bool
	OutputFormat string
	Stdout       io.Writer
}

// ShowHistory prints stored runs, one run's executions or per-request stats
func ShowHistory(opts HistoryOptions) error {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	mgr, err := history.NewManager(opts.DatabasePath)
	if err != nil {
		return err
	}
	defer mgr.Close()

	var v interface{}
	switch {
	case opts.Stats:
		v, err = mgr.Stats()
	case opts.RunID != "":
		v, err = mgr.Executions(opts.RunID)
	default:
		v, err = mgr.Runs(opts.Limit)
	}
	if err != nil {
		return err
	}

	if opts.OutputFormat == "json" || opts.OutputFormat == "yaml" {
		return writeValue(opts.Stdout, v, opts.OutputFormat)
	}

	tw := tabwriter.NewWriter(opts.Stdout, 0, 4, 2, ' ', 0)
	switch rows := v.(type) {
	case []history.Stats:
		fmt.Fprintln(tw, "NAME\tCOUNT\tERRORS\tAVG\tMIN\tMAX")
		for _, s := range rows {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\n", s.Name, s.Count, s.Errors,
				executor.FormatDuration(s.AvgDuration), executor.FormatDuration(s.MinDuration), executor.FormatDuration(s.MaxDuration))
		}
	case []history.Execution:
		fmt.Fprintln(tw, "#\tNAME\tMETHOD\tURL\tSTATUS\tDURATION\tERROR")
		for _, e := range rows {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n", e.Index, e.Name, e.Method, e.URL, e.StatusCode,
				executor.FormatDuration(e.Duration), e.Error)
		}
	case []history.Run:
		fmt.Fprintln(tw, "ID\tCOLLECTION\tSTARTED\tITEMS\tFAILED\tDURATION")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", r.ID, r.Collection, r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.Items, r.Failed, executor.FormatDuration(r.Duration))
		}
	}
	return tw.Flush()
}
