// Command kritor-gateway accepts kritor core connections and dispatches
// their events to the built-in services.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
