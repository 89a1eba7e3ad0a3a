package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cvtailor/cvtailor/internal/domain"
	"github.com/cvtailor/cvtailor/internal/workflows"
)

func report(results []*domain.ScanResult) error {
	if jsonOut {
		if len(results) == 1 {
			return printJSON(results[0])
		}
		return printJSON(results)
	}
	for _, r := range results {
		printResult(r)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResult(r *domain.ScanResult) {
	fmt.Println()
	bold.Printf("%s\n", r.URL)
	if r.Adapter != "" {
		dim.Printf("   adapter: %s\n", r.Adapter)
	}
	if r.RedirectURL != "" {
		yellow.Printf("   ↪ application form lives at %s\n", r.RedirectURL)
	}

	if r.Empty() {
		yellow.Println("   no application form found")
	}
	for _, f := range r.Forms {
		green.Printf("   ✓ form %s ", f.FormID)
		fmt.Printf("(%d fields)\n", f.FieldCount)
		for _, d := range f.Fields {
			fmt.Printf("      %-10s %-40s %s\n", d.Kind, truncate(d.Label, 40), dim.Sprint("#"+d.ID))
		}
	}
	if r.CoverLetterSelector != "" {
		cyan.Printf("   cover letter: %s\n", r.CoverLetterSelector)
	}
	for _, fail := range r.Failures {
		red.Printf("   ✗ %s field %d: %s\n", fail.FormID, fail.FieldIndex, fail.Error)
	}
	if r.Duration > 0 {
		dim.Printf("   scanned in %s\n", r.Duration.Round(time.Millisecond))
	}
}

func printPage(p workflows.ScanPageOutput) {
	switch {
	case p.Error != "":
		red.Printf("✗ %s: %s\n", p.URL, p.Error)
	case p.Outcome == domain.OutcomeEmpty:
		yellow.Printf("○ %s: no form", p.URL)
		if p.SnapshotKey != "" {
			dim.Printf(" (snapshot %s)", p.SnapshotKey)
		}
		fmt.Println()
	default:
		green.Printf("✓ %s: ", p.URL)
		fmt.Printf("%d forms, %d fields\n", p.FormCount, p.FieldCount)
	}
}

// signature identifies what a scan found so watch mode only reprints
// results that changed.
func signature(r *domain.ScanResult) string {
	var b strings.Builder
	b.WriteString(r.RedirectURL)
	for _, f := range r.Forms {
		fmt.Fprintf(&b, "|%s:%d", f.FormID, f.FieldCount)
		for _, d := range f.Fields {
			b.WriteString("," + d.ID)
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
