package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"pkt.systems/resultnav/internal/scenario"
)

func newRunCommand(open func(*cobra.Command) (*session, error)) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "run <file...>",
		Short: "Run scenario files",
		Long: `Run replays every YAML document in the given files. Each document is a
scenario with a name and a list of steps:

  name: tombstone
  steps:
    - {op: open, kind: main, as: main}
    - {op: request, unit: main, as: child, text: Hello}
    - {op: tombstone, unit: main}
    - {op: reply, unit: child}
    - {op: restore, unit: main}
    - {op: expect, unit: main, field: FinalText, equals: "Hello Not specified"}

With --watch the files are rerun whenever they change until interrupted.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if !watch {
				failed, total := runFiles(ctx, out, args, s.config)
				return summary(failed, total)
			}
			w, err := newFileWatcher(args, s.logger)
			if err != nil {
				return err
			}
			defer w.Close()
			runFiles(ctx, out, args, s.config)
			return w.Loop(ctx, func(path string) {
				s.logger.Info("cli.watch.rerun", "file", path)
				runFiles(ctx, out, []string{path}, s.config)
			})
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "rerun files when they change")
	return cmd
}

// runFiles runs every scenario in files and returns failed and total counts.
// A file that does not parse counts as one failed scenario.
func runFiles(ctx context.Context, out io.Writer, files []string, cfg scenario.Config) (int, int) {
	failed, total := 0, 0
	for _, path := range files {
		scenarios, err := scenario.ParseFile(path)
		if err != nil {
			printResult(out, path, nil, err)
			failed++
			total++
			continue
		}
		for _, sc := range scenarios {
			total++
			res, runErr := scenario.Run(ctx, sc, cfg)
			printResult(out, sc.Name, res, runErr)
			if runErr != nil {
				failed++
			}
		}
	}
	return failed, total
}
