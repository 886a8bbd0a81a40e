package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ent0n29/audiodiary/internal/app"
	"github.com/ent0n29/audiodiary/internal/config"
	"github.com/ent0n29/audiodiary/internal/diary"
)

func newEntriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entries",
		Short: "Inspect and manage stored diary entries",
	}

	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List diary entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd.Context(), func(ctx context.Context, repo diary.Repository) error {
				entries, err := repo.List(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), entries)
				}
				return writeEntryTable(cmd.OutOrStdout(), entries)
			})
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one diary entry as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEntryID(args[0])
			if err != nil {
				return err
			}
			return withRepository(cmd.Context(), func(ctx context.Context, repo diary.Repository) error {
				entry, err := repo.Get(ctx, id)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), entry)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a diary entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEntryID(args[0])
			if err != nil {
				return err
			}
			return withRepository(cmd.Context(), func(ctx context.Context, repo diary.Repository) error {
				if err := repo.Delete(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted entry %d\n", id)
				return nil
			})
		},
	}

	cmd.AddCommand(list, show, del)
	return cmd
}

func withRepository(ctx context.Context, fn func(context.Context, diary.Repository) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	repo, err := app.BuildRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()
	return fn(ctx, repo)
}

func parseEntryID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid entry id %q", raw)
	}
	return id, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeEntryTable(w io.Writer, entries []diary.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tSUMMARY")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", e.ID, e.Date.Format("2006-01-02 15:04"), firstLine(e.Summary))
	}
	return tw.Flush()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	if r := []rune(line); len(r) > 60 {
		return string(r[:57]) + "..."
	}
	return line
}
