// steerctl -- CLI client for the steerd admin API.
package main

import "github.com/cococomm/steerd/cmd/steerctl/commands"

func main() {
	commands.Execute()
}
