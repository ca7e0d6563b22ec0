package report

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/ethpandaops/smokeoor/pkg/executor"
	"github.com/fatih/color"
)

// Console writes record lines to out and failure diagnostics to diag.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	diag    io.Writer
	heading *color.Color
}

// Ensure interface compliance.
var _ Sink = (*Console)(nil)

// NewConsole creates a console sink. Typically out is stdout and diag is
// stderr.
func NewConsole(out, diag io.Writer) *Console {
	return &Console{
		out:     out,
		diag:    diag,
		heading: color.New(color.FgRed, color.Bold),
	}
}

// Write emits diagnostics for a failed result, then the record line.
func (c *Console) Write(_ context.Context, result *executor.Result) error {
	line, err := result.Record.Line()
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !result.Success() {
		if err := c.writeDiagnostics(result); err != nil {
			return fmt.Errorf("writing diagnostics: %w", err)
		}
	}

	if _, err := c.out.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}

	return nil
}

func (c *Console) writeDiagnostics(result *executor.Result) error {
	if _, err := fmt.Fprintln(c.diag); err != nil {
		return err
	}

	if _, err := c.heading.Fprintln(c.diag, "Failed. Response body:"); err != nil {
		return err
	}

	if _, err := fmt.Fprintf(c.diag, "\n%s\n", result.Body); err != nil {
		return err
	}

	if _, err := c.heading.Fprintln(c.diag, "\ncurl repro command:"); err != nil {
		return err
	}

	_, err := fmt.Fprintf(c.diag, "\n%s\n\n", result.ReproCommand())

	return err
}
