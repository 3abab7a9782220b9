package reporting

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/renewbot/api/schemas"
)

// SummaryWriter prints the per-user outcomes of a finished run.
type SummaryWriter interface {
	Write(outcomes []schemas.RunOutcome) error
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// NewSummaryWriter creates a summary writer for format ("text" or "json")
// writing to outputPath, or stdout when the path is empty or "stdout".
func NewSummaryWriter(format, outputPath string) (SummaryWriter, error) {
	if format != "text" && format != "json" {
		return nil, fmt.Errorf("unsupported summary format: %s", format)
	}

	var w io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		w = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create summary file %s: %w", outputPath, err)
		}
		w = f
	}

	if format == "json" {
		return &jsonSummary{w: w}, nil
	}
	return &textSummary{w: w}, nil
}

type jsonSummary struct {
	w io.WriteCloser
}

func (s *jsonSummary) Write(outcomes []schemas.RunOutcome) error {
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(s.w)
	enc.SetIndent("", "  ")
	if outcomes == nil {
		outcomes = []schemas.RunOutcome{}
	}
	return enc.Encode(outcomes)
}

func (s *jsonSummary) Close() error {
	return s.w.Close()
}

type textSummary struct {
	w io.WriteCloser
}

func (s *textSummary) Write(outcomes []schemas.RunOutcome) error {
	tw := tabwriter.NewWriter(s.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tSTATUS\tRESOURCES\tDURATION\tMESSAGE")
	for _, o := range outcomes {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			o.Identifier, o.Status, len(o.Resources),
			o.FinishedAt.Sub(o.StartedAt).Round(time.Second), o.Message)
	}
	return tw.Flush()
}

func (s *textSummary) Close() error {
	return s.w.Close()
}
