package main

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/HopkinsIDD/flepimop-go/pkg/perr"
)

var patchOutput string

var patchCmd = &cobra.Command{
	Use:   "patch <base.yaml> [overlay.yaml...]",
	Short: "Deep-merge N config documents, last-wins on scalars",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPatch,
}

func init() {
	patchCmd.Flags().StringVarP(&patchOutput, "output", "o", "", "write the merged document here instead of stdout")
}

// runPatch deep-merges its arguments in order: a later document wins on any
// scalar key it also sets, and a list under one of the appendListKeys
// concatenates instead of replacing (§6 patch verb), generalizing the
// teacher's dotted-path ApplyOverrides from single key=value pairs to whole
// documents.
func runPatch(cmd *cobra.Command, args []string) error {
	var merged map[string]interface{}
	for _, path := range args {
		doc, err := loadYAMLMap(path)
		if err != nil {
			return err
		}
		if merged == nil {
			merged = doc
			continue
		}
		merged = deepMerge(merged, doc)
	}

	out, err := yaml.Marshal(merged)
	if err != nil {
		return perr.NewConfigError("patch", err)
	}

	if patchOutput == "" {
		_, err = cmd.OutOrStdout().Write(out)
		return err
	}
	return os.WriteFile(patchOutput, out, 0644)
}

func loadYAMLMap(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, perr.NewIOError(path, err)
	}
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, perr.NewConfigError("patch", err)
	}
	return doc, nil
}

// appendListKeys are the document keys merged by concatenation rather than
// last-wins replacement, matched by key name at any depth: a scenario's
// transitions, axis label lists, Stacked modifier children and outcome sum
// operands all grow rather than shrink when an overlay is applied.
var appendListKeys = map[string]bool{
	"transitions": true,
	"labels":      true,
	"children":    true,
	"sum":         true,
}

func deepMerge(base, overlay map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base))
	for k, v := range base {
		out[k] = v
	}
	for k, ov := range overlay {
		bv, exists := out[k]
		if !exists {
			out[k] = ov
			continue
		}
		switch ovt := ov.(type) {
		case map[string]interface{}:
			if bvt, ok := bv.(map[string]interface{}); ok {
				out[k] = deepMerge(bvt, ovt)
				continue
			}
			out[k] = ov
		case []interface{}:
			if bvt, ok := bv.([]interface{}); ok && appendListKeys[k] {
				out[k] = append(append([]interface{}{}, bvt...), ovt...)
				continue
			}
			out[k] = ov
		default:
			out[k] = ov
		}
	}
	return out
}
