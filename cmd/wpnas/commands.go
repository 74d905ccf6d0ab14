package main

import (
	"github.com/spf13/cobra"

	"github.com/wpnas/wpnas/internal/log"
)

var (
	configPath string
	logLevel   string
	siteURL    string
)

var rootCmd = &cobra.Command{
	Use:   "wpnas",
	Short: "WPNAS plugin catalog",
	Long:  "Browse the WPNAS plugin catalog and install, update or activate plugins on a WordPress site.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBrowse()
	},
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run:   runVersion,
}

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse the catalog interactively",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runBrowse(); err != nil {
			log.Fatalf("Error browsing plugins: %v", err)
		}
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog plugins",
	Long:  "List catalog plugins with their local status. Search, sort and filters apply the same rules as the browser.",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runList(cmd); err != nil {
			log.Fatalf("Error listing plugins: %v", err)
		}
	},
}

var installCmd = &cobra.Command{
	Use:   "install <slug>...",
	Short: "Install or update plugins",
	Long:  "Install catalog plugins on the site, or update them when the catalog has a newer version.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runInstall(cmd, args); err != nil {
			log.Fatalf("Error installing plugins: %v", err)
		}
	},
}

var activateCmd = &cobra.Command{
	Use:   "activate <plugin-file>",
	Short: "Activate an installed plugin",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runActivate(args[0]); err != nil {
			log.Fatalf("Error activating plugin: %v", err)
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the unix socket API",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServe(); err != nil {
			log.Fatalf("Error starting server: %v", err)
		}
	},
}

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Serve a cached copy of the upstream catalog",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runProxy(cmd); err != nil {
			log.Fatalf("Error running proxy: %v", err)
		}
	},
}
