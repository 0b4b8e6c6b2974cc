// Package main provides the entry point for the ipchanger CLI.
//
// ipchanger asks a local Tor daemon for a new circuit, verifies that the exit
// address actually changed, and keeps an audit trail of every rotation.
//
// Usage:
//
//	ipchanger rotate
//	ipchanger current --geo
//	ipchanger history --verify
//
// See --help for all available options.
package main

// main is the entry point for ipchanger.
func main() {
	Execute()
}
