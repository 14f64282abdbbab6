// Package main provides the flowcat CLI tool for copying, appending,
// and inspecting flow-record files.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
