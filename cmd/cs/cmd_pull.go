package main

import (
	"flag"
	"fmt"

	"github.com/daviddao/calsync/pkg/frontier"
)

func (a *app) cmdPull(args []string) int {
	flags := flag.NewFlagSet("pull", flag.ContinueOnError)
	since := flags.Int64("since", 0, "only records with updatedAt > this (ms)")
	activeOnly := flags.Bool("active", false, "hide tombstones")
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	events := a.engine.ListSince(*since)
	watermark := frontier.Advance(*since, events)

	if *activeOnly {
		filtered := events[:0]
		for _, e := range events {
			if !e.Deleted {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	if *jsonOut {
		printJSON(map[string]interface{}{"events": events, "count": len(events), "watermark": watermark})
		return 0
	}
	if len(events) == 0 {
		fmt.Println("no events")
	}
	for _, e := range events {
		printEvent(e)
	}
	fmt.Printf("watermark: %d\n", watermark)
	return 0
}
