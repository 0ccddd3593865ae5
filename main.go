// ABOUTME: Entry point for the zonesync binary
// ABOUTME: All wiring lives in the cmd package
package main

import "github.com/ZoneSync-Audio/zonesync-go/cmd"

func main() {
	cmd.Execute()
}
