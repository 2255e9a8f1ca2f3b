// Grammardist builds bundled parsers from a grammar repository.
package main

import "github.com/albertocavalcante/grammardist/cmd/grammardist/internal/cli"

func main() {
	cli.Execute()
}
