package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

const deleteUsage = "usage: cs delete [--at MS] [--json] <id>..."

func (a *app) cmdDelete(args []string) int {
	flags := flag.NewFlagSet("delete", flag.ContinueOnError)
	at := flags.Int64("at", 0, "delete timestamp in ms (0 = now)")
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	if flags.NArg() < 1 {
		fmt.Fprintln(os.Stderr, deleteUsage)
		return 1
	}

	// flag stops parsing at the first id; refuse flags that follow it.
	ids := flags.Args()
	for _, id := range ids {
		if strings.HasPrefix(id, "-") {
			fmt.Fprintf(os.Stderr, "cs: delete: flag %q after ids; flags must come first\n", id)
			fmt.Fprintln(os.Stderr, deleteUsage)
			return 1
		}
	}

	affected, err := a.engine.ApplyDeletes(ids, *at)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cs: delete: %v\n", err)
		return 1
	}

	if *jsonOut {
		printJSON(map[string]interface{}{"ok": true, "affectedCount": affected, "ids": ids})
	} else {
		fmt.Printf("deleted %d of %d\n", affected, len(ids))
	}
	return 0
}
