package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/angelmondragon/stockledger/internal/audit"
)

type verifier interface {
	Verify(ctx context.Context, rng audit.Range) (*audit.VerifyReport, error)
}

// run verifies rng and writes the report to w. It reports false when any
// corruption was found.
func run(ctx context.Context, v verifier, rng audit.Range, asJSON bool, w io.Writer) (bool, error) {
	report, err := v.Verify(ctx, rng)
	if err != nil {
		return false, err
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return false, fmt.Errorf("encode report: %w", err)
		}
		return report.OK(), nil
	}
	if err := writeText(w, report); err != nil {
		return false, err
	}
	return report.OK(), nil
}

func writeText(w io.Writer, report *audit.VerifyReport) error {
	if _, err := fmt.Fprintf(w, "checked %d records (sequence %d..%d)\n", report.Checked, report.FromSequence, report.ToSequence); err != nil {
		return err
	}
	if report.OK() {
		_, err := fmt.Fprintln(w, "chain intact")
		return err
	}
	if _, err := fmt.Fprintf(w, "%d corruptions at positions %v\n", len(report.Corruptions), report.Positions()); err != nil {
		return err
	}
	for _, c := range report.Corruptions {
		if _, err := fmt.Fprintf(w, "  - %s\n", c.Error()); err != nil {
			return err
		}
	}
	return nil
}
