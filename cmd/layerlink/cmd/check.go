package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/amche/layerlink/internal/domain/catalog"
	"github.com/amche/layerlink/internal/domain/layer"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var checkCmd = &cobra.Command{
	Use:   "check <file|dir>",
	Short: "Validate atlas documents",
	Long:  "Validates atlas documents against the embedded schema and per-layer rules. Exits non-zero when any document fails, for CI use.",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,

	SilenceUsage: true,
}

func runCheck(cmd *cobra.Command, args []string) error {
	paths, err := collectDocuments(args[0])
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no .json documents under %s", args[0])
	}

	log := zap.NewNop()
	bad := 0
	for _, path := range paths {
		var problems []string
		data, err := os.ReadFile(path)
		if err != nil {
			problems = []string{err.Error()}
		} else {
			problems = checkDocument(path, data, log)
		}
		if len(problems) == 0 {
			fmt.Printf("  %s✓%s %s\n", colorGreen, colorReset, path)
			continue
		}
		bad++
		fmt.Printf("  %s✗%s %s\n", colorYellow, colorReset, path)
		for _, p := range problems {
			fmt.Printf("      %s\n", p)
		}
	}

	if bad > 0 {
		return fmt.Errorf("%d of %d documents invalid", bad, len(paths))
	}
	fmt.Printf("%s⚡ %d documents valid%s\n", colorBold, len(paths), colorReset)
	return nil
}

// collectDocuments expands a file or directory argument into the .json
// documents to validate.
func collectDocuments(arg string) ([]string, error) {
	info, err := os.Stat(arg)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{arg}, nil
	}
	entries, err := os.ReadDir(arg)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		paths = append(paths, filepath.Join(arg, e.Name()))
	}
	return paths, nil
}

// checkDocument applies the envelope schema plus per-layer rules and
// returns one problem per violation.
func checkDocument(path string, data []byte, log *zap.Logger) []string {
	id := strings.TrimSuffix(filepath.Base(path), ".json")
	if _, err := catalog.ParseDocument(id, data, log); err != nil {
		return []string{err.Error()}
	}

	var raw struct {
		Layers []any `json:"layers"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return []string{err.Error()}
	}

	var problems []string
	counts := map[string]int{}
	var order []string
	note := func(layerID string) {
		if counts[layerID] == 0 {
			order = append(order, layerID)
		}
		counts[layerID]++
	}

	for i, item := range raw.Layers {
		switch v := item.(type) {
		case string:
			if strings.TrimSpace(v) == "" {
				problems = append(problems, fmt.Sprintf("layers[%d]: empty layer id", i))
				continue
			}
			note(v)
		case map[string]any:
			d, err := layer.FromFields(layer.Fields(v))
			if err != nil {
				problems = append(problems, fmt.Sprintf("layers[%d]: %v", i, err))
				continue
			}
			if d.Opacity < 0 || d.Opacity > 1 {
				problems = append(problems, fmt.Sprintf("layers[%d]: opacity %v outside [0,1]", i, d.Opacity))
			}
			note(d.ID)
		default:
			problems = append(problems, fmt.Sprintf("layers[%d]: must be an id string or a layer object", i))
		}
	}

	for _, layerID := range order {
		if counts[layerID] > 1 {
			problems = append(problems, fmt.Sprintf("layer %q declared %d times", layerID, counts[layerID]))
		}
	}
	return problems
}
