package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"meetingrelay/internal/cleaner"
	"meetingrelay/internal/domain"
	"meetingrelay/internal/extract"
	"meetingrelay/internal/parser"
)

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Print the tasks found in a payload without storing or sending them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		return runParse(in, cmd.OutOrStdout())
	},
}

type parseOutput struct {
	Meeting domain.MeetingContext `json:"meeting"`
	Grammar string                `json:"grammar,omitempty"`
	Tasks   []domain.CleanedTask  `json:"tasks"`
}

func runParse(in io.Reader, out io.Writer) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}
	extracted := extract.FromBytes(data)
	entries, grammar := parser.New().Parse(extracted.Text)

	res := parseOutput{Meeting: extracted.Meeting, Grammar: grammar, Tasks: make([]domain.CleanedTask, 0, len(entries))}
	for _, e := range entries {
		res.Tasks = append(res.Tasks, cleaner.Task(e))
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
