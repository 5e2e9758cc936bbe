// Command recopy stores records described by YAML model definitions and
// deep-copies them between models.
package main

import "github.com/mesh-intelligence/recopy/internal/cli"

func main() {
	cli.Execute()
}
