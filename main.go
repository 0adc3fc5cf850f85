// The main package for the recipecrawl executable.
package main

import "github.com/probekit/recipecrawl/cmd"

func main() {
	cmd.Execute()
}
