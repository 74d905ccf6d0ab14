package main

import (
	"github.com/spf13/cobra"

	"github.com/wpnas/wpnas/internal/log"
)

var Version = "dev"

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default $XDG_CONFIG_HOME/wpnas/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&siteURL, "site", "", "WordPress site URL (overrides site_url)")

	addListFlags(listCmd)

	installCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")

	proxyCmd.Flags().String("listen", "", "Listen address (default proxy.listen from config)")

	rootCmd.AddCommand(versionCmd, browseCmd, listCmd, installCmd, activateCmd, serveCmd, proxyCmd)
}

func addListFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("search", "s", "", "Search text")
	cmd.Flags().String("sort", "", "Sort as field[:asc|desc]")
	cmd.Flags().StringArrayP("filter", "f", nil, "Filter as field:operator:value (repeatable)")
	cmd.Flags().Int("page", 1, "Number of pages to show")
	cmd.Flags().Int("per-page", 0, "Rows per page (default per_page from config)")
	cmd.Flags().Bool("json", false, "Print JSON instead of a table")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
