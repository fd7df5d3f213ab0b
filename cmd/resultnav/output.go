package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"pkt.systems/resultnav/internal/scenario"
)

func printResult(w io.Writer, name string, res *scenario.Result, runErr error) {
	status := "PASS"
	if runErr != nil {
		status = "FAIL"
	}
	fmt.Fprintf(w, "== %s: %s\n", name, status)
	if res == nil {
		fmt.Fprintf(w, "  %v\n", runErr)
		return
	}
	for _, line := range res.Transcript {
		fmt.Fprintf(w, "  %s\n", line)
	}
	if len(res.Pending) == 0 {
		fmt.Fprintf(w, "  pending: none\n")
		return
	}
	for _, p := range res.Pending {
		outcome := "result " + p.ResultType
		if !p.Success {
			outcome = "cancelled"
		}
		fmt.Fprintf(w, "  pending %s: %s, parked %s\n", p.TxnID, outcome, humanize.RelTime(p.StoredAt, res.Now, "ago", "from now"))
	}
}

// summary returns an error naming how many of total scenarios failed.
func summary(failed, total int) error {
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d %s failed", failed, total, pluralScenario(total))
}

func pluralScenario(n int) string {
	if n == 1 {
		return "scenario"
	}
	return "scenarios"
}
