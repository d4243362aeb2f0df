package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/3cpo-dev/conveyor/internal/core"
	"github.com/3cpo-dev/conveyor/internal/pipeline"
	"github.com/3cpo-dev/conveyor/internal/task"
)

// List registered tasks
func newTasksCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List the registered tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := st.load(cmd); err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, name := range st.registry.Names() {
				fmt.Fprintf(w, "%s\t%s\n", name, st.registry.Description(name))
			}
			return w.Flush()
		},
	}
}

// Print the resolved execution tree
func newPlanCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "plan [task]",
		Short: "Print the execution tree of a task without running it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := pipeline.DefaultTask
			if len(args) == 1 {
				name = args[0]
			}
			if err := st.load(cmd); err != nil {
				return err
			}
			plan, err := task.Compile(st.registry, name)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), plan.String())
			return nil
		},
	}
}

// Show recent runs
func newHistoryCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			asJSON, _ := cmd.Flags().GetBool("json")
			if err := st.load(cmd); err != nil {
				return err
			}
			store, err := core.NewStore(st.cfg.HistoryPath())
			if err != nil {
				return err
			}
			defer store.Close()
			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "no runs recorded")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTASK\tSTATUS\tSTARTED\tDURATION\tFAILED")
			for _, r := range runs {
				failed := r.FailedTask
				if r.Error != "" {
					failed = strings.TrimSpace(failed + " " + r.Error)
				}
				duration := r.Duration().Round(time.Millisecond).String()
				if !r.Status.Done() {
					// still running, or the process died before recording an outcome
					duration, failed = "-", "unfinished"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.ID[:8], r.Task, r.Status, humanize.Time(r.StartedAt), duration, failed)
			}
			return w.Flush()
		},
	}
	cmd.Flags().Int("limit", 20, "number of runs to show")
	cmd.Flags().Bool("json", false, "print runs as JSON")
	return cmd
}
