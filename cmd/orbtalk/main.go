// Command orbtalk is a terminal voice client for a model-serving chat
// endpoint.
//
// Usage:
//
//	orbtalk [chat] [--config orbtalk.yaml] [--origin https://host | --url wss://host/api/chat]
//	orbtalk devices
//	orbtalk version
package main

import (
	"fmt"
	"os"

	"github.com/MrWong99/orbtalk/cmd/orbtalk/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "orbtalk:", err)
		os.Exit(1)
	}
}
