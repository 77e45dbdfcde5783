// Command editorswarm orchestrates fleets of external editor processes to
// run automated test scenarios against game projects.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	err := newRootCmd().Execute()
	switch {
	case err == nil:
	case errors.Is(err, errSuiteFailed):
		// Failed scenarios already appear in the printed summary.
		os.Exit(1)
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
