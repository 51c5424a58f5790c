// Command kgsearch runs retrievals against the knowledge store from the
// command line and maintains the Qdrant index.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
