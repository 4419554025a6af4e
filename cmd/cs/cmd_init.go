package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/daviddao/calsync/pkg/model"
	"github.com/daviddao/calsync/pkg/push"
)

func (a *app) cmdInit(args []string) int {
	flags := flag.NewFlagSet("init", flag.ContinueOnError)
	vapid := flags.Bool("vapid", false, "generate VAPID keys and append them to the env file")
	envFile := flags.String("env-file", ".env", "env file to write VAPID keys to")
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	// Only a missing data file is created; an existing one, even one that
	// loads as empty, is left untouched.
	created := false
	if _, err := os.Stat(a.cfg.DataPath); os.IsNotExist(err) {
		if err := a.queue.Do("init", func() error { return a.store.Save(model.Snapshot{}) }); err != nil {
			fmt.Fprintf(os.Stderr, "cs: init: %v\n", err)
			return 1
		}
		created = true
	}
	total, active := a.engine.Counts()

	keysWritten := false
	if *vapid {
		written, err := ensureVAPIDKeys(*envFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cs: init: %v\n", err)
			return 1
		}
		keysWritten = written
	}

	if *jsonOut {
		printJSON(map[string]interface{}{
			"data": a.cfg.DataPath, "created": created, "events": total, "activeEvents": active,
			"vapidWritten": keysWritten,
		})
		return 0
	}

	fmt.Printf("initialized calsync (data: %s)\n", a.cfg.DataPath)
	if created {
		fmt.Println("  created empty store")
	}
	if total > 0 {
		fmt.Printf("  %d existing record(s), %d active\n", total, active)
	}
	if *vapid {
		if keysWritten {
			fmt.Printf("  wrote VAPID keys to %s\n", *envFile)
		} else {
			fmt.Printf("  VAPID keys already present in %s\n", *envFile)
		}
	}

	fmt.Println()
	fmt.Println("next steps:")
	if !*vapid && !a.cfg.VAPID.Configured() {
		fmt.Println("  cs init --vapid   # enable push notifications")
	}
	fmt.Println("  cs serve          # run the sync API")
	return 0
}

// ensureVAPIDKeys appends a fresh key pair to path unless it already
// defines VAPID_PUBLIC_KEY. Reports whether keys were written.
func ensureVAPIDKeys(path string) (bool, error) {
	content, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	text := string(content)
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "VAPID_PUBLIC_KEY=") {
			return false, nil
		}
	}

	pub, priv, err := push.GenerateKeys()
	if err != nil {
		return false, err
	}
	if text != "" && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	text += fmt.Sprintf("VAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\n", pub, priv)
	if err := os.WriteFile(path, []byte(text), 0600); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
