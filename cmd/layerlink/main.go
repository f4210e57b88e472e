// layerlink is the catalog and link service behind the amche community map.
// It resolves layer declarations across atlas documents into one registry
// and keeps the shareable layers parameter in sync with layer state.
package main

import (
	"os"

	"github.com/amche/layerlink/cmd/layerlink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
