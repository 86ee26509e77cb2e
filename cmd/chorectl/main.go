// Package main implements chorectl, the administrative CLI for chorepoints.
// It runs migrations and the batch jobs on demand, records manual point
// adjustments and mints access tokens for operators.
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
