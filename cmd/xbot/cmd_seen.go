package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/dlps55195/x-bot-worker/internal/seen"

	"github.com/spf13/cobra"
)

var seenCmd = &cobra.Command{
	Use:   "seen",
	Short: "Inspect and maintain the dedup store",
}

var seenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List posts replied to within the retention window",
	RunE:  listSeen,
}

var seenPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop expired entries and rewrite the store",
	RunE:  pruneSeen,
}

var seenImportCmd = &cobra.Command{
	Use:   "import [seen.json]",
	Short: "Merge a JSON seen file into the SQLite store",
	Args:  cobra.ExactArgs(1),
	RunE:  importSeen,
}

func listSeen(cmd *cobra.Command, args []string) error {
	store, err := seen.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	entries := store.Entries()
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return entries[ids[i]].After(entries[ids[j]]) })

	out := cmd.OutOrStdout()
	if len(ids) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("no posts within the retention window"))
		return nil
	}
	t := &table{
		title:   fmt.Sprintf("Seen posts (%s, %s)", cfg.Seen.Backend, cfg.Seen.Path),
		headers: []string{"post", "replied at", "expires in"},
	}
	retention := cfg.GetRetention()
	for _, id := range ids {
		at := entries[id]
		left := time.Until(at.Add(retention)).Round(time.Minute)
		t.addRow(nil, id, at.UTC().Format(time.RFC3339), left.String())
	}
	fmt.Fprint(out, t.view())
	return nil
}

func pruneSeen(cmd *cobra.Command, args []string) error {
	store, err := seen.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Prune()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pruned %d expired entries, %d remain\n", n, store.Len())
	return nil
}

func importSeen(cmd *cobra.Command, args []string) error {
	if cfg.Seen.Backend != "sqlite" {
		return fmt.Errorf("seen import needs seen.backend sqlite, got %q", cfg.Seen.Backend)
	}
	store, err := seen.OpenSQLite(cfg.Seen.Path, seen.WithRetention(cfg.GetRetention()))
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.ImportLegacy(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d entries into %s\n", n, cfg.Seen.Path)
	return nil
}
