// Package main provides the entry point for the smartlists application.
//
// smartlists evaluates rule-based smart playlists against a local music
// library and keeps the matching Spotify playlists in sync.
package main

import cmd "github.com/toozej/smartlists/cmd/smartlists"

// main is the entry point of the smartlists application.
// It delegates execution to the cmd package which handles all
// command-line interface functionality.
func main() {
	cmd.Execute()
}
