// Command hosz records duty-status changes and pre-trip inspections and
// reports hours-of-service compliance from a SQLite log.
package main

import (
	"log"

	"github.com/zoobzio/hosz/internal/config"
)

var version = "0.1.0"

func main() {
	log.SetFlags(0)
	log.SetPrefix("hosz: ")

	if err := newRootCmd().Execute(); err != nil {
		config.ExitErr(err)
	}
}
