package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	resolveSearch string
	resolveJSON   bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve the catalog and print the registry",
	Long:  "Fetches the atlas index, the atlas documents, and the preset library, builds the layer registry, and prints the resolved layers of the active atlas.",
	RunE:  runResolve,
}

func init() {
	f := resolveCmd.Flags()
	f.StringVar(&resolveSearch, "search", "", "Filter layers by id/title/description term")
	f.BoolVar(&resolveJSON, "json", false, "Output as JSON")
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := cliLogger(cfg.Debug)
	defer log.Sync()

	ctx := cmd.Context()
	cat, reg, closeFn, err := buildCatalog(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeFn()

	atlas := cfg.Atlas
	if atlasFlag != "" {
		id, err := cat.LoadExtra(ctx, atlasFlag)
		if err != nil {
			return fmt.Errorf("atlas: %w", err)
		}
		atlas = id
	}
	reg.Build()

	layers := reg.GetAtlasLayers(atlas)
	header := fmt.Sprintf("%d layers │ %s │ %d in registry", len(layers), atlas, reg.Count())
	if resolveSearch != "" {
		layers = reg.SearchLayers(resolveSearch, "")
		header = fmt.Sprintf("%d hits for %q │ %d in registry", len(layers), resolveSearch, reg.Count())
	}

	if resolveJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(layers)
	}

	fmt.Print(formatLayers(header, layers))
	return nil
}
