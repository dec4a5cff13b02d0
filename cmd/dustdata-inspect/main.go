// Command dustdata-inspect opens a collection directory, without committing
// any transaction, and prints its primary index size, WAL head, and chunk
// file listing.
package main

import (
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/rustbase/dustdata/internal/dustdatacli"
)

func main() {
	os.Exit(run(os.Stdout, os.Stderr, os.Args[1:]))
}

func run(out, errOut io.Writer, args []string) int {
	if hasHelpFlag(args) {
		printHelp(out)
		return 0
	}

	dir, code := parseFlags(errOut, args)
	if code != 0 {
		return code
	}

	report, err := dustdatacli.Inspect(dir)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	dustdatacli.PrintReport(out, report)
	return 0
}

func parseFlags(errOut io.Writer, args []string) (string, int) {
	flagSet := flag.NewFlagSet("dustdata-inspect", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	dir := flagSet.StringP("dir", "d", "", "Collection directory to inspect (required)")

	if err := flagSet.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return "", 2
	}

	if *dir == "" {
		fmt.Fprintln(errOut, "error: --dir is required")
		return "", 2
	}

	return *dir, 0
}

func hasHelpFlag(args []string) bool {
	for _, a := range args {
		if a == "--help" || a == "-h" {
			return true
		}
	}
	return false
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Usage: dustdata-inspect --dir=<collection dir>")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Opens a DustData collection without committing to it and reports its index size,")
	fmt.Fprintln(out, "WAL head transaction id, and data/WAL chunk file listing.")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")
	fmt.Fprintln(out, "  -d, --dir=<path>   Collection directory (required)")
}
