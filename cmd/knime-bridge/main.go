// Package main provides the entry point for the knime-bridge CLI.
package main

import "yqhp/knime-bridge/cmd"

func main() {
	cmd.Execute()
}
