// elvis-sim runs Elvis internet-simulation scenarios to completion.
package main

import "github.com/dantte-lp/elvis/cmd/elvis-sim/commands"

func main() {
	commands.Execute()
}
