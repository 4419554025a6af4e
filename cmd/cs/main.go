// Command cs is the calsync CLI: it runs the sync service and inspects or
// edits the event store directly.
package main

import (
	"fmt"
	"os"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "--help", "-h", "help":
		printUsage()
		return
	case "--version", "-v", "version":
		fmt.Println("cs", version)
		return
	case "vapid":
		// Needs no store.
		os.Exit(cmdVapid(os.Args[2:]))
	}

	a, err := newApp()
	if err != nil {
		fatal("%v", err)
	}
	code := a.dispatch(os.Args[1], os.Args[2:])
	a.Close()
	os.Exit(code)
}

// dispatch runs the named subcommand and returns its exit code.
func (a *app) dispatch(name string, args []string) int {
	switch name {
	// Setup
	case "init":
		return a.cmdInit(args)

	// Service
	case "serve":
		return a.cmdServe(args)

	// Store operations
	case "pull":
		return a.cmdPull(args)
	case "upsert", "put":
		return a.cmdUpsert(args)
	case "delete", "rm":
		return a.cmdDelete(args)
	case "watch":
		return a.cmdWatch(args)
	case "status":
		return a.cmdStatus(args)

	default:
		fmt.Fprintf(os.Stderr, "cs: unknown command %q\n", name)
		fmt.Fprintln(os.Stderr, "Run 'cs --help' for usage.")
		return 1
	}
}

func printUsage() {
	fmt.Print(`cs - calendar sync service

Last-write-wins event sync with tombstones, incremental pull and web push.

Usage:
  cs <command> [flags]

Setup:
  init [--vapid]            Create the data store; --vapid also writes keys to .env
  vapid                     Print a new VAPID key pair

Service:
  serve [--addr A]          Run the HTTP sync API

Commands:
  pull [--since N]          List records updated after N (ms), tombstones included
  upsert --id ID [...]      Write one event (last write wins)
  delete [--at N] <id>...   Tombstone events (flags before ids)
  watch [--interval N]      Stream changes as they are committed
  status                    Show record counts and the latest watermark

Aliases:
  put = upsert, rm = delete

Environment:
  CALSYNC_ADDR            listen address (default: :8080)
  CALSYNC_DATA            store path (default: data/events.json)
  CALSYNC_STORE           file | sqlite (default: inferred from CALSYNC_DATA)
  VAPID_PUBLIC_KEY        push public key
  VAPID_PRIVATE_KEY       push private key
  VAPID_SUBJECT           push contact (default: mailto:admin@example.com)
  CALSYNC_REDIS_URL       publish change notices to Redis (optional)
  CALSYNC_REDIS_CHANNEL   notice channel (default: calsync:changes)
  CALSYNC_CORS_ORIGINS    comma-separated allowed origins (default: *)
  CALSYNC_LOG_LEVEL       debug | info | warn | error (default: info)

A .env file in the working directory is read if present.
All commands support --json for machine-readable output.

Exit codes:
  0  success
  1  error
`)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "cs: "+format+"\n", args...)
	os.Exit(1)
}
