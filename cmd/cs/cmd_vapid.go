package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/daviddao/calsync/pkg/push"
)

func cmdVapid(args []string) int {
	flags := flag.NewFlagSet("vapid", flag.ContinueOnError)
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	pub, priv, err := push.GenerateKeys()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cs: vapid: %v\n", err)
		return 1
	}
	if *jsonOut {
		printJSON(map[string]string{"publicKey": pub, "privateKey": priv})
	} else {
		fmt.Printf("VAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\n", pub, priv)
	}
	return 0
}
