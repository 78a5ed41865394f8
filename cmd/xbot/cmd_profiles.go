package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dlps55195/x-bot-worker/internal/browser"
	"github.com/dlps55195/x-bot-worker/internal/profiles"

	"github.com/spf13/cobra"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List active profiles and check their session credentials",
	RunE:  listProfiles,
}

var profilesImportCmd = &cobra.Command{
	Use:   "import [profiles.yaml]",
	Short: "Copy profiles from a YAML file into the SQLite profile store",
	Long: `Upserts every profile of the YAML file, active or not, into the SQLite
database at profiles.path. Existing rows with the same id are replaced.`,
	Args: cobra.ExactArgs(1),
	RunE: importProfiles,
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func listProfiles(cmd *cobra.Command, args []string) error {
	src, err := profiles.Open(cfg)
	if err != nil {
		return err
	}
	defer profiles.Close(src)

	active, err := src.ActiveProfiles(commandContext(cmd))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(active) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("no active profiles"))
		return nil
	}

	t := &table{
		title:   fmt.Sprintf("Active profiles (%s)", cfg.Profiles.Source),
		headers: []string{"profile", "lists", "credentials"},
	}
	for _, p := range active {
		cookies, err := browser.SanitizeCookies(p.Cookies, cfg.Browser.AllowedSites)
		state, color := fmt.Sprintf("%d cookies", len(cookies)), successColor
		if err != nil {
			state, color = err.Error(), failColor
		}
		t.addRow(color, p.ID, strconv.Itoa(len(p.TargetListURLs)), state)
	}
	fmt.Fprint(out, t.view())
	return nil
}

func importProfiles(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	all, err := profiles.NewFileSource(args[0]).All(ctx)
	if err != nil {
		return err
	}

	db, err := profiles.OpenSQLiteSource(cfg.Profiles.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, p := range all {
		if err := db.Upsert(ctx, p); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d profiles into %s\n", len(all), cfg.Profiles.Path)
	return nil
}
