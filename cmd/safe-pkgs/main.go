// Command safe-pkgs is the CLI and MCP server entry point: it serves
// check_package/check_lockfile over stdio, runs a one-shot lockfile
// audit, or prints the registry x check support map (spec §6).
package main

func main() {
	defer logger.Sync()
	Execute()
}
