// refdata manages reference tables from the command line.
//
// # Commands
//
//	refdata tables list|create|delete|show   table lifecycle
//	refdata sync <table>                     register keys from JSON records
//	refdata read <table>                     print every row
//	refdata upsert <table> <key> [a=v ...]   curate one row
//	refdata rows delete <table> <key>        remove one row
//	refdata pending <table>                  keys registered by sync, not yet curated
//	refdata map <table>                      curate rows from JSON records, typed by the table's columns
//	refdata config init                      write a refdata.yaml with the defaults
//
// # Quick Start
//
//	refdata config init
//	refdata tables create producttype --column Category:string --notify
//	refdata sync producttype --key-attribute Produkt --file products.json
//	refdata upsert producttype VTP001 Category=Insurance
//	refdata read producttype
//
// Storage, logging and mapping policy come from refdata.yaml, found by
// walking up from the working directory, or from --config.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root, teardown := newRootCmd()
	err := root.ExecuteContext(ctx)
	if cerr := teardown(); err == nil {
		err = cerr
	}
	stop()
	if err != nil {
		os.Exit(1)
	}
}
