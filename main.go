// The main package for the ivesna executable.
package main

import (
	"github.com/quirkfly/ivesna/cmd"
)

func main() {
	cmd.Execute()
}
