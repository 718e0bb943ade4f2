package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/zoobzio/hosz"
)

// ExitHardStop is the exit status of a command refused by the pre-trip
// inspection gate, so scripts can prompt for an inspection.
const ExitHardStop = 3

// Exitf writes a hosz-prefixed message to stderr and exits with status 1.
func Exitf(format string, args ...any) {
	exit(1, format, args...)
}

// ExitErr reports a failed command and exits. A hard stop exits with
// ExitHardStop, anything else with 1.
func ExitErr(err error) {
	code := 1
	if errors.Is(err, hosz.ErrHardStopRequired) {
		code = ExitHardStop
	}
	exit(code, "%v", err)
}

func exit(code int, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "hosz: "+format+"\n", args...)
	os.Exit(code)
}
