package cmd

import (
	"encoding/json"
	"io/ioutil"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/TheCurle/BS/pkg/plugins/cc"
)

// MergeCompileCommands combines several compile_commands.json files. If a file is compiled in more than one
// input, the entry from the last input wins.
func MergeCompileCommands(inputs []string) ([]cc.CompileCommand, error) {
	output := make([]cc.CompileCommand, 0)
	positions := make(map[string]int)

	for _, fpath := range inputs {
		data, err := ioutil.ReadFile(fpath)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to read %s", fpath)
		}

		var chunk []cc.CompileCommand
		err = json.Unmarshal(data, &chunk)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to decode %s", fpath)
		}

		for _, entry := range chunk {
			if pos, ok := positions[entry.File]; ok {
				output[pos] = entry
				continue
			}

			positions[entry.File] = len(output)
			output = append(output, entry)
		}
	}

	return output, nil
}

var mergeCompileCommandsCmd = &cobra.Command{
	Use:   "merge-compile-commands <output file> <input files...>",
	Short: "Merges several compile_commands.json files. Assumes that only absolute paths are used.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) < 2 {
			return eris.Errorf("expected at least 2 arguments but got %d", len(args))
		}

		output, err := MergeCompileCommands(args[1:])
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			return eris.Wrap(err, "failed to encode output")
		}

		err = ioutil.WriteFile(args[0], data, 0660)
		if err != nil {
			return eris.Wrapf(err, "failed to write to %s", args[0])
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(mergeCompileCommandsCmd)
}
