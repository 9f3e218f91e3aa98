// Command commentctl inspects comment files and previews where new comments land.
package main

import (
	"fmt"
	"os"

	"github.com/sr-verde/gitmentario/core/config"
)

func main() {
	cfg, err := config.Load(config.ServiceTypeCLI)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	root := newRootCmd(&app{site: cfg.Site, nodeID: cfg.NodeID})
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
