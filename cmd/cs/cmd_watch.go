package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/daviddao/calsync/pkg/frontier"
)

func (a *app) cmdWatch(args []string) int {
	flags := flag.NewFlagSet("watch", flag.ContinueOnError)
	interval := flags.Int("interval", 1, "poll interval in seconds")
	since := flags.Int64("since", -1, "start after this timestamp (-1 = current watermark)")
	jsonOut := flags.Bool("json", false, "JSON output (one JSON object per line)")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	cursor := *since
	if cursor < 0 {
		cursor = frontier.Advance(0, a.engine.ListSince(0))
	}
	pollInterval := time.Duration(*interval) * time.Second

	// Handle ctrl-c gracefully.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	fmt.Fprintf(os.Stderr, "watching %s from ts=%d (poll every %s, ctrl-c to stop)\n",
		a.cfg.DataPath, cursor, pollInterval)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sig:
			fmt.Fprintln(os.Stderr, "\nstopped")
			return 0
		case <-ticker.C:
			cursor = a.pollOnce(os.Stdout, cursor, *jsonOut)
		}
	}
}

// pollOnce prints every record committed after cursor and returns the
// advanced cursor.
func (a *app) pollOnce(w io.Writer, cursor int64, jsonOut bool) int64 {
	events := a.engine.ListSince(cursor)
	for _, e := range events {
		if jsonOut {
			b, _ := json.Marshal(e)
			fmt.Fprintln(w, string(b))
		} else if e.Deleted {
			fmt.Fprintf(w, "[ts=%d] %s deleted\n", e.UpdatedAt, e.ID)
		} else {
			fmt.Fprintf(w, "[ts=%d] %s %q\n", e.UpdatedAt, e.ID, e.Title)
		}
	}
	return frontier.Advance(cursor, events)
}
