package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/amche/layerlink/internal/domain/catalog"
	"github.com/amche/layerlink/internal/domain/layer"
)

// ANSI color codes for terminal output.
const (
	colorReset   = "\033[0m"
	colorBold    = "\033[1m"
	colorCyan    = "\033[36m"
	colorMagenta = "\033[35m"
	colorGreen   = "\033[32m"
	colorYellow  = "\033[33m"
	colorGray    = "\033[90m"
)

// formatLayers formats resolved descriptors for terminal display.
//
//	⚡ 12 layers │ goa │ 40 in registry
//	  goa-roads  Road Network  vector
//	  mumbai-wards  Ward Boundaries  vector  @mumbai
func formatLayers(header string, layers []*layer.Descriptor) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s⚡ %s%s\n", colorBold, header, colorReset))
	for _, d := range layers {
		sb.WriteString(fmt.Sprintf("  %s%s%s", colorCyan, d.PrefixedID, colorReset))
		if d.Title != "" {
			sb.WriteString("  " + d.Title)
		}
		if d.Type != "" {
			sb.WriteString(fmt.Sprintf("  %s%s%s", colorGray, d.Type, colorReset))
		}
		if d.CrossAtlas {
			sb.WriteString(fmt.Sprintf("  %s@%s%s", colorMagenta, d.OriginalAtlas, colorReset))
		}
		if !d.Complete() {
			sb.WriteString(fmt.Sprintf("  %sincomplete%s", colorYellow, colorReset))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// formatAtlases formats the known atlas list with metadata.
func formatAtlases(cat *catalog.Catalog) string {
	var sb strings.Builder
	ids := cat.AtlasIDs()
	sb.WriteString(fmt.Sprintf("%s⚡ %d atlases%s\n", colorBold, len(ids), colorReset))
	for _, id := range ids {
		md, ok := cat.Metadata(id)
		if !ok {
			sb.WriteString(fmt.Sprintf("  %s%s%s  %snot loaded%s\n",
				colorCyan, id, colorReset, colorYellow, colorReset))
			continue
		}
		sb.WriteString(fmt.Sprintf("  %s%s%s  %s", colorCyan, id, colorReset, md.Name))
		if n := len(cat.DeclaredLayers(id)); n > 0 {
			sb.WriteString(fmt.Sprintf("  %s%d layers%s", colorGray, n, colorReset))
		}
		if md.AreaOfInterest != "" {
			sb.WriteString(fmt.Sprintf("  %s%s%s", colorMagenta, md.AreaOfInterest, colorReset))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// formatStubs formats tokenized link items without resolving them.
func formatStubs(stubs []layer.Stub) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s⚡ %d items%s\n", colorBold, len(stubs), colorReset))
	for _, st := range stubs {
		sb.WriteString(fmt.Sprintf("  %s%s%s", colorCyan, st.ID, colorReset))
		if st.Kind == layer.StubInline {
			if ov := overrideSummary(st.Overrides); ov != "" {
				sb.WriteString("  " + ov)
			}
			sb.WriteString(fmt.Sprintf("  %s%s%s", colorGray, st.OriginalText, colorReset))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// overrideSummary renders inline overrides, minus the id, as sorted k=v pairs.
func overrideSummary(f layer.Fields) string {
	keys := make([]string, 0, len(f))
	for k := range f {
		if k == "id" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, f[k]))
	}
	return strings.Join(parts, " ")
}
