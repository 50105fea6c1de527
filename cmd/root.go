package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
)

// rootCmd represents the base command for the discoveryd application.
var rootCmd = &cobra.Command{
	Use:   "discoveryd",
	Short: "Network and infrastructure discovery MCP server",
	Long: `discoveryd exposes network and infrastructure discovery tools
(nmap, SNMP, Proxmox, Zabbix, ...) as MCP tools/resources/prompts over
stdio, HTTP+SSE, and AMQP transports, backed by a hot-reloadable
plugin manager, a credential vault, and a CMDB store.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "discoveryd version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitCodeError)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newToolsCmd())
}
