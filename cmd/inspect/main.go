// Command inspect prints the head and tail of a fire-weather archive and runs
// integrity checks over it: key order, duplicate keys and index names.
//
// Usage:
//
//	go run ./cmd/inspect -archive fireweather_archive_warnregions.parquet -n 5
package main

import (
	"cmp"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/couchcryptid/fireweather-etl/internal/adapter/parquet"
	"github.com/couchcryptid/fireweather-etl/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// maxReported caps the errors kept per phase.
const maxReported = 20

func main() {
	archive := flag.String("archive", "fireweather_archive_warnregions.parquet", "path to the Parquet archive")
	n := flag.Int("n", 5, "rows to print from the head and the tail")
	flag.Parse()

	os.Exit(run(os.Stdout, *archive, *n))
}

func run(out io.Writer, path string, n int) int {
	store := parquet.NewStore(path, "", parquet.LayoutWide, 0)
	readings, err := store.Load(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	fmt.Fprintf(out, "=== %s ===\n\n", path)
	printRows(out, readings, n)

	phases := []*phase{
		checkOrder(readings),
		checkDuplicates(readings),
		checkIndexNames(readings),
	}

	fmt.Fprintln(out)
	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-32s %s\n", p.name, status)
	}
	fmt.Fprintf(out, "\nReadings: %d\n", len(readings))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll checks passed.")
		return 0
	}
	fmt.Fprintln(out, "\nChecks FAILED.")
	return 1
}

// printRows shows the first and last n rows in wide form, or in long form
// when the readings cannot be pivoted.
func printRows(out io.Writer, readings []domain.Reading, n int) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	defer tw.Flush()

	rows, err := domain.Pivot(readings)
	if err != nil {
		fmt.Fprintf(tw, "date\tregion_id\tindex_name\tvalue\t\n")
		for _, r := range headTail(readings, n) {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", r.Date, r.RegionID, r.Index, formatValue(r.Value))
		}
		return
	}

	fmt.Fprintf(tw, "date\tregion_id\t%s\t\n", strings.Join(domain.IndexNames[:], "\t"))
	for _, row := range headTail(rows, n) {
		cells := make([]string, 0, domain.NumIndices)
		for _, v := range row.Values {
			cells = append(cells, formatValue(v))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t\n", row.Date, row.RegionID, strings.Join(cells, "\t"))
	}
}

// headTail returns the first and last n items, without repeating any.
func headTail[T any](items []T, n int) []T {
	if n <= 0 {
		return nil
	}
	if len(items) <= 2*n {
		return items
	}
	out := append([]T(nil), items[:n]...)
	return append(out, items[len(items)-n:]...)
}

func formatValue(v *float64) string {
	if v == nil {
		return "NaN"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// checkOrder requires (date, region_id) to never decrease. Wide archives
// expand each row into all indices, so only the row key is ordered.
func checkOrder(readings []domain.Reading) *phase {
	p := &phase{name: "Sort order (date, region_id)"}
	for i := 1; i < len(readings); i++ {
		a, b := readings[i-1], readings[i]
		c := cmp.Compare(a.Date, b.Date)
		if c == 0 {
			c = domain.CompareRegionIDs(a.RegionID, b.RegionID)
		}
		if c > 0 {
			p.errorf("row %d (%s, %s) after (%s, %s)", i, b.Date, b.RegionID, a.Date, a.RegionID)
			if len(p.errors) >= maxReported {
				break
			}
		}
	}
	return p
}

func checkDuplicates(readings []domain.Reading) *phase {
	p := &phase{name: "Unique (date, region_id, index)"}
	seen := make(map[domain.ReadingKey]int, len(readings))
	for i, r := range readings {
		if first, ok := seen[r.Key()]; ok {
			p.errorf("row %d duplicates row %d: %s %s %s", i, first, r.Date, r.RegionID, r.Index)
			if len(p.errors) >= maxReported {
				break
			}
			continue
		}
		seen[r.Key()] = i
	}
	return p
}

func checkIndexNames(readings []domain.Reading) *phase {
	p := &phase{name: "Known index names"}
	unknown := map[string]bool{}
	for _, r := range readings {
		if !domain.IsIndex(r.Index) && !unknown[r.Index] {
			unknown[r.Index] = true
			p.errorf("unknown index %q", r.Index)
		}
	}
	return p
}
