package metadefender

import (
	"bufio"
	"fmt"
	"io"
	"maps"
	"slices"
)

// WriteReport writes a human-readable rendering of r: the overall verdict,
// one block per engine in name order, and the verdict again.
func WriteReport(w io.Writer, r *AnalysisReport) error {
	if r == nil {
		return NewValidationError("nil report", nil)
	}

	bw := bufio.NewWriter(w)
	verdict := r.Verdict()

	fmt.Fprintf(bw, "overall status: %s\n", verdict)
	for _, name := range slices.Sorted(maps.Keys(r.ScanResults.ScanDetails)) {
		e := r.ScanResults.ScanDetails[name]
		fmt.Fprintf(bw, "engine: %s\n", name)
		fmt.Fprintf(bw, "threat_found: %s\n", e.ThreatFound)
		fmt.Fprintf(bw, "scan_result: %d\n", e.ScanResultI)
		fmt.Fprintf(bw, "def_time: %s\n", e.DefTime)
	}
	fmt.Fprintf(bw, "%s\n", verdict)

	return bw.Flush()
}
