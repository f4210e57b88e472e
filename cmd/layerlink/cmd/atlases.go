package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var atlasesJSON bool

var atlasesCmd = &cobra.Command{
	Use:   "atlases",
	Short: "List known atlases",
	Long:  "Lists every atlas the catalog knows about with its display metadata. Atlases that failed to load appear with their id only.",
	RunE:  runAtlases,
}

func init() {
	atlasesCmd.Flags().BoolVar(&atlasesJSON, "json", false, "Output as JSON")
}

func runAtlases(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := cliLogger(cfg.Debug)
	defer log.Sync()

	ctx := cmd.Context()
	cat, _, closeFn, err := buildCatalog(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeFn()

	if atlasFlag != "" {
		if _, err := cat.LoadExtra(ctx, atlasFlag); err != nil {
			return fmt.Errorf("atlas: %w", err)
		}
	}

	if atlasesJSON {
		type atlasInfo struct {
			ID             string    `json:"id"`
			Name           string    `json:"name,omitempty"`
			Color          string    `json:"color,omitempty"`
			AreaOfInterest string    `json:"areaOfInterest,omitempty"`
			Bbox           []float64 `json:"bbox,omitempty"`
			Loaded         bool      `json:"loaded"`
			Layers         int       `json:"layers,omitempty"`
		}
		infos := make([]atlasInfo, 0)
		for _, id := range cat.AtlasIDs() {
			info := atlasInfo{ID: id}
			if md, ok := cat.Metadata(id); ok {
				info.Name = md.Name
				info.Color = md.Color
				info.AreaOfInterest = md.AreaOfInterest
				info.Loaded = true
				info.Layers = len(cat.DeclaredLayers(id))
				if b := md.Bbox; b != nil {
					info.Bbox = []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
				}
			}
			infos = append(infos, info)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	fmt.Print(formatAtlases(cat))
	return nil
}
