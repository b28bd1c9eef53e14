// Command speechmodels manages on-device speech model artifacts: registry
// discovery, verified downloads, archive extraction and local readiness.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
