// Command launchctl talks to a running launch advisor and checks site
// registry files offline.
//
// Usage:
//
//	launchctl sites
//	launchctl decide KSC_LC39A 2026-03-01T14:30:00Z
//	launchctl show <decision-id>
//	launchctl validate -f sites.yaml
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
