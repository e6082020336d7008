// Command faceauth logs users in (or signs them up) with their face.
//
// Usage:
//
//	faceauth serve --listen :8080
//	faceauth login
//	faceauth signup --field name=Ada --field age=36
//	faceauth models fetch
package main

import "github.com/teslashibe/go-faceauth/internal/cli"

func main() {
	cli.Execute()
}
