package cmd

import (
	"fmt"
	"net/url"

	"github.com/amche/layerlink/internal/domain/layer"
	"github.com/amche/layerlink/internal/domain/linkstate"
	"github.com/spf13/cobra"
)

var linkResolve bool

var linkCmd = &cobra.Command{
	Use:   "link <layers-text>",
	Short: "Parse a layers parameter",
	Long:  "Tokenizes layers parameter text into items, optionally resolving each item against the catalog, and prints the text the serializer writes back for untouched state.",
	Args:  cobra.ExactArgs(1),
	RunE:  runLink,
}

func init() {
	linkCmd.Flags().BoolVar(&linkResolve, "resolve", false, "Resolve items against the catalog")
}

func runLink(cmd *cobra.Command, args []string) error {
	text := args[0]
	// browsers hand over percent-encoded text; the codec works on the
	// decoded form
	if dec, err := url.PathUnescape(text); err == nil {
		text = dec
	}
	stubs := linkstate.Tokenize(text)

	if !linkResolve {
		fmt.Print(formatStubs(stubs))
		fmt.Printf("  %sround trip:%s %s\n", colorGray, colorReset, roundTrip(stubs))
		return nil
	}

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

	fmt.Printf("%s⚡ %d items │ %s%s\n", colorBold, len(stubs), atlas, colorReset)
	unknown := 0
	for _, st := range stubs {
		shown := st.ID
		if st.Kind == layer.StubInline {
			shown = st.OriginalText
		}
		d := reg.GetLayer(st.ID, atlas)
		if d == nil {
			unknown++
			fmt.Printf("  %s%s%s  %sunknown%s\n", colorCyan, shown, colorReset, colorYellow, colorReset)
			continue
		}
		fmt.Printf("  %s%s%s  %s", colorCyan, shown, colorReset, d.Title)
		if d.CrossAtlas {
			fmt.Printf("  %s@%s%s", colorMagenta, d.OriginalAtlas, colorReset)
		}
		fmt.Println()
	}
	if unknown > 0 {
		fmt.Printf("  %s%d unknown ids would be dropped from the link%s\n", colorYellow, unknown, colorReset)
	}
	return nil
}

// roundTrip shows what the serializer writes when no item state changed.
func roundTrip(stubs []layer.Stub) string {
	entries := make([]linkstate.Entry, 0, len(stubs))
	for _, st := range stubs {
		entries = append(entries, linkstate.Entry{
			DisplayID:    st.ID,
			OriginalText: st.OriginalText,
			Opacity:      1,
		})
	}
	return linkstate.Serialize(entries)
}
