// Command goidentity runs the identity HTTP service and its maintenance tasks.
package main

import "github.com/MrEthical07/goIdentity/cmd/goidentity/cmd"

func main() {
	cmd.Execute()
}
