package main

import (
	"flag"
	"fmt"

	"github.com/daviddao/calsync/pkg/frontier"
)

func (a *app) cmdStatus(args []string) int {
	flags := flag.NewFlagSet("status", flag.ContinueOnError)
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	st := frontier.ComputeStatus(0, a.engine.ListSince(0))
	store := a.cfg.StoreKind
	if store == "" {
		store = "auto"
	}

	if *jsonOut {
		printJSON(map[string]interface{}{
			"data":         a.cfg.DataPath,
			"store":        store,
			"events":       st.Upserts + st.Deletes,
			"activeEvents": st.Upserts,
			"tombstones":   st.Deletes,
			"watermark":    st.Watermark,
			"push":         a.cfg.VAPID.Configured(),
			"notices":      a.cfg.RedisURL != "",
		})
		return 0
	}

	fmt.Printf("data:       %s (%s)\n", a.cfg.DataPath, store)
	fmt.Printf("events:     %d (%d active, %d tombstones)\n", st.Upserts+st.Deletes, st.Upserts, st.Deletes)
	fmt.Printf("watermark:  %d\n", st.Watermark)
	fmt.Printf("push:       %s\n", onOff(a.cfg.VAPID.Configured()))
	if a.cfg.RedisURL != "" {
		fmt.Printf("notices:    on (%s)\n", a.cfg.RedisChannel)
	} else {
		fmt.Println("notices:    off")
	}
	return 0
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
