package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/discoveryd/discoveryd/internal/config"
	"github.com/discoveryd/discoveryd/internal/pluginmgr"
	"github.com/discoveryd/discoveryd/internal/registry"
	discoverystrings "github.com/discoveryd/discoveryd/pkg/strings"
)

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect plugins discovered under PLUGINS_ROOT",
	}
	cmd.AddCommand(newToolsListCmd())
	return cmd
}

func newToolsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List discovered plugins and their state",
		RunE:  runToolsList,
	}
}

// runToolsList discovers plugins under PLUGINS_ROOT and prints their
// manifest identity and state machine position, without activating
// them or starting a server.
func runToolsList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	reg := registry.New()
	mgr := pluginmgr.New(cfg.PluginsRoot, pluginmgr.SignaturePolicy{}, reg)
	if err := mgr.Discover(); err != nil {
		return fmt.Errorf("discovering plugins: %w", err)
	}

	plugins := mgr.List()

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"ID", "Version", "State", "Entry", "Last Error"})
	for _, p := range plugins {
		lastErr := discoverystrings.TruncateDescription(p.LastError, discoverystrings.DefaultDescriptionMaxLen)
		t.AppendRow(table.Row{p.ID, p.Manifest.Version, p.State, p.Manifest.Entry, lastErr})
	}
	t.Render()

	if len(plugins) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no plugins discovered under %s\n", cfg.PluginsRoot)
	}
	return nil
}
