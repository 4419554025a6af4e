package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/daviddao/calsync/pkg/model"
)

func (a *app) cmdUpsert(args []string) int {
	flags := flag.NewFlagSet("upsert", flag.ContinueOnError)
	id := flags.String("id", "", "event id (required)")
	title := flags.String("title", "", "event title")
	start := flags.String("start", "", "start time, passed through as-is")
	allDay := flags.Bool("all-day", false, "all-day event")
	reminder := flags.Int("reminder", -1, "reminder lead time in minutes (-1 = none)")
	updatedAt := flags.Int64("updated-at", 0, "write timestamp in ms (0 = now)")
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	if *id == "" {
		fmt.Fprintln(os.Stderr, "usage: cs upsert --id ID [--title T] [--start S] [--all-day] [--reminder N] [--updated-at MS] [--json]")
		return 1
	}

	c := newCandidate(*id, *title, *start, *allDay, *reminder, *updatedAt)
	accepted, err := a.engine.ApplyUpserts([]model.Candidate{c})
	if err != nil {
		fmt.Fprintf(os.Stderr, "cs: upsert: %v\n", err)
		return 1
	}

	if *jsonOut {
		printJSON(map[string]interface{}{"ok": true, "acceptedCount": accepted, "id": *id})
	} else if accepted == 1 {
		fmt.Printf("upserted %s\n", *id)
	} else {
		fmt.Printf("ignored %s: a newer write is stored\n", *id)
	}
	return 0
}

// newCandidate builds a candidate from flag values. A reminder below zero
// means none; an updatedAt of zero leaves the write for the engine to stamp.
func newCandidate(id, title, start string, allDay bool, reminder int, updatedAt int64) model.Candidate {
	ev := model.Event{ID: id, Title: title, Start: start, AllDay: allDay, UpdatedAt: updatedAt}
	if reminder >= 0 {
		r := reminder
		ev.ReminderMinutes = &r
	}
	return model.Candidate{Event: ev, Stamped: updatedAt > 0}
}
