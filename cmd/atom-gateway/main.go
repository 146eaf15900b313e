// Command atom-gateway is the standalone entrypoint for the Gateway
// Manager: it loads message_gateway.config.json, spawns the selected
// channel plugins, and serves a small admin/diagnostics HTTP surface
// until it receives a shutdown signal.
package main

import (
	"fmt"
	"os"

	"github.com/aokihu/atom-message-gateway/internal/gatewaycmd"
)

func main() {
	root := gatewaycmd.Command()
	root.Use = "atom-gateway"
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "atom-gateway:", err)
		os.Exit(1)
	}
}
