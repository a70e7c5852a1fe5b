// Command cogbase inspects and repairs an agent's memory checkpoint
// directory: store counts, the pending episode, procedural rules and
// similarity queries.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
