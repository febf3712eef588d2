// Command ruleeval evaluates one rule text against one campaign snapshot.
//
//	ruleeval -rule 'IF Spend > $500 AND CTR < 1%' -snapshot snap.json
//
// The exit status is 0 whenever the rule was evaluated, whatever the verdict,
// and 2 when the input cannot be read.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/liamcoop/campaignrules/feed"
	"github.com/liamcoop/campaignrules/internal/logger"
	"github.com/liamcoop/campaignrules/rules"
)

const (
	exitOK    = 0
	exitInput = 2
)

func main() {
	logger.SetOutput(os.Stderr)
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ruleeval", flag.ContinueOnError)
	fs.SetOutput(stderr)
	rule := fs.String("rule", "", "Rule text to evaluate")
	snapshotPath := fs.String("snapshot", "", "Snapshot JSON file, - for stdin")
	record := fs.Bool("record", false, "Read the snapshot as an upstream campaign record")
	asJSON := fs.Bool("json", false, "Print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return exitInput
	}

	if *rule == "" || *snapshotPath == "" {
		fmt.Fprintln(stderr, "ruleeval: -rule and -snapshot are required")
		fs.Usage()
		return exitInput
	}

	data, err := readInput(*snapshotPath, stdin)
	if err != nil {
		fmt.Fprintf(stderr, "ruleeval: %v\n", err)
		return exitInput
	}

	snap, err := decodeSnapshot(data, *record)
	if err != nil {
		fmt.Fprintf(stderr, "ruleeval: %v\n", err)
		return exitInput
	}

	prog := rules.Compile(*rule)
	matched, diags := prog.Trace(snap)

	if *asJSON {
		out := struct {
			Rule        string             `json:"rule"`
			Parsed      string             `json:"parsed"`
			Matched     bool               `json:"matched"`
			Diagnostics []rules.Diagnostic `json:"diagnostics,omitempty"`
		}{*rule, prog.String(), matched, diags}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fmt.Fprintf(stderr, "ruleeval: %v\n", err)
		}
		return exitOK
	}

	fmt.Fprintf(stdout, "parsed:  %s\n", prog)
	fmt.Fprintf(stdout, "matched: %t\n", matched)
	for _, d := range diags {
		fmt.Fprintf(stdout, "diagnostic: %s\n", d)
	}
	return exitOK
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func decodeSnapshot(data []byte, record bool) (*rules.Snapshot, error) {
	if record {
		return feed.DecodeRecord(data, time.Now())
	}
	var snap rules.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}
