// Command dynaquery is a small driver for the planner/executor stack:
// it parses a filter expression, plans it against a chosen table's
// capabilities, prints the resulting sub-queries, and — unless
// -plan-only is set — executes the plan against a local BadgerDB store.
// The demo run seeds that store with demo data first and interactive
// mode seeds it on .seed; -query runs against whatever the store at -db
// already holds. Adapted from the teacher's cmd/datalog driver
// (flag.BoolVar-per-flag style, the demo/interactive/single-query
// trichotomy, .exit/.help dot-commands).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lattice-id/dynaquery/kvexec"
	"github.com/lattice-id/dynaquery/planner"
	"github.com/lattice-id/dynaquery/reqbuild"
	"github.com/lattice-id/dynaquery/schema"
	"github.com/lattice-id/dynaquery/store/badgerstore"
)

var tables = map[string]func() *schemaCaps{
	"accounts":        func() *schemaCaps { return wrap(schema.Accounts()) },
	"devices":         func() *schemaCaps { return wrap(schema.Devices()) },
	"sessions":        func() *schemaCaps { return wrap(schema.Sessions()) },
	"tokens":          func() *schemaCaps { return wrap(schema.Tokens()) },
	"delegations":     func() *schemaCaps { return wrap(schema.Delegations()) },
	"nonces":          func() *schemaCaps { return wrap(schema.Nonces()) },
	"dynamic-clients": func() *schemaCaps { return wrap(schema.DynamicClients()) },
	"buckets":         func() *schemaCaps { return wrap(schema.Buckets()) },
	"links":           func() *schemaCaps { return wrap(schema.Links()) },
}

func main() {
	var dbPath string
	var tableName string
	var interactive bool
	var help bool
	var planOnly bool
	var countMode bool
	var queryStr string
	var pageSize int

	flag.StringVar(&dbPath, "db", "", "badger database path (empty = in-memory)")
	flag.StringVar(&tableName, "table", "accounts", "logical table to plan/execute against")
	flag.BoolVar(&interactive, "i", false, "interactive mode")
	flag.BoolVar(&help, "h", false, "show help")
	flag.BoolVar(&planOnly, "plan-only", false, "print the plan and exit without executing")
	flag.BoolVar(&countMode, "count", false, "run in COUNT mode instead of fetching items")
	flag.StringVar(&queryStr, "query", "", "run a single filter expression and exit")
	flag.IntVar(&pageSize, "page-size", 25, "page size for a single executed query")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Plans and (optionally) executes filter expressions against dynaquery's tables.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nFilter syntax: attr op value [AND attr op value]* [OR ...]\n")
		fmt.Fprintf(os.Stderr, "  ops: = != < <= > >= ^= (starts-with) ~= (contains) ? (present, no value)\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                          # Run demo\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -query 'userName = \"janedoe\"'            # Single query\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -table devices -i                        # Interactive mode on devices\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -query 'userNameInitial = \"j\" AND userName ^= \"jane\"' -count  # COUNT mode\n", os.Args[0])
	}
	flag.Parse()

	if help {
		flag.Usage()
		os.Exit(0)
	}

	sc, ok := tables[tableName]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown table %q (known: %s)\n", tableName, strings.Join(knownTables(), ", "))
		os.Exit(1)
	}
	caps := sc()

	s, err := badgerstore.Open(dbPath, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	p := planner.New(caps.capabilities, planner.Options{Cache: planner.NewCache(256, time.Minute)})
	exec := kvexec.New(s, caps.capabilities, kvexec.DefaultOptions())

	switch {
	case queryStr != "":
		runOnce(s, caps, p, exec, queryStr, planOnly, countMode, pageSize)
	case interactive:
		runInteractive(s, caps, p, exec)
	default:
		runDemo(s, caps, p, exec)
	}
}

func knownTables() []string {
	out := make([]string, 0, len(tables))
	for name := range tables {
		out = append(out, name)
	}
	return out
}

func runOnce(s *badgerstore.Store, caps *schemaCaps, p *planner.Planner, exec *kvexec.Executor, queryStr string, planOnly, countMode bool, pageSize int) {
	e, err := parseFilter(queryStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "filter parse error: %v\n", err)
		os.Exit(1)
	}

	plan, err := p.Plan(e)
	if err != nil {
		fmt.Fprintf(os.Stderr, "plan rejected: %v\n", err)
		os.Exit(1)
	}

	reqs := reqbuild.Queries(plan, caps.capabilities, reqbuild.Options{PageSize: int32(pageSize)})
	printPlan(os.Stdout, plan, reqs, true)

	if planOnly {
		return
	}

	if countMode {
		result, err := exec.Count(context.Background(), plan)
		if err != nil {
			fmt.Fprintf(os.Stderr, "count error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\ncount: %d (approximate: %t)\n", result.Count, result.Approximate)
		return
	}

	page, err := exec.Execute(context.Background(), plan, pageSize, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "execute error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println()
	printItems(os.Stdout, page.Items)
	if page.Cursor != "" {
		fmt.Printf("\ncursor: %s\n", page.Cursor)
	}
}

func runInteractive(s *badgerstore.Store, caps *schemaCaps, p *planner.Planner, exec *kvexec.Executor) {
	fmt.Println("=== dynaquery interactive mode ===")
	fmt.Println("Commands:")
	fmt.Println("  .help        - show help")
	fmt.Println("  .exit        - exit")
	fmt.Println("  .seed        - load demo data for the current table")
	fmt.Println("  <filter>     - plan and execute a filter expression")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == ".exit":
			return
		case line == ".help":
			fmt.Println("Enter a filter expression, or one of .seed, .exit")
		case line == ".seed":
			caps.seed(s)
			fmt.Println("seeded demo data")
		default:
			runOnce(s, caps, p, exec, line, false, false, 25)
		}
	}
}

func runDemo(s *badgerstore.Store, caps *schemaCaps, p *planner.Planner, exec *kvexec.Executor) {
	fmt.Println("=== dynaquery demo ===")
	fmt.Println("\nSeeding demo data...")
	caps.seed(s)

	queries := []string{
		`userName = "janedoe"`,
		`userNameInitial = "j" AND userName ^= "j"`,
		`userName = "johndoe" OR userNameInitial = "j" AND userName ^= "john"`,
	}

	for _, q := range queries {
		fmt.Printf("\nFilter: %s\n", q)
		runOnce(s, caps, p, exec, q, false, false, 25)
	}
}
