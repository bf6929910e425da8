// init.go implements the tourchat init subcommand (scaffold .tourdesk/).
package tourcli

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

//go:embed config.yaml
var initConfig string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold .tourdesk/config.yaml.",
	Long:  `Create .tourdesk/config.yaml with commented defaults. Use --force to overwrite an existing file.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		force, _ := cmd.Flags().GetBool("force")
		RunInit(force)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolP("force", "f", false, "Overwrite existing files")
}

// RunInit scaffolds .tourdesk/ with a config file. If force is true,
// overwrites existing files.
func RunInit(force bool) {
	cwd, err := os.Getwd()
	if err != nil {
		slog.Error("Cannot get current directory", "error", err)
		os.Exit(1)
	}
	tourdeskDir := filepath.Join(cwd, ".tourdesk")
	if err := os.MkdirAll(tourdeskDir, 0750); err != nil {
		slog.Error("Failed to create .tourdesk directory", "error", err)
		os.Exit(1)
	}
	configPath := filepath.Join(tourdeskDir, "config.yaml")
	if !force {
		if _, err := os.Stat(configPath); err == nil {
			fmt.Printf("  %s already exists (use --force to overwrite)\n", configPath)
			return
		}
	}
	if err := os.WriteFile(configPath, []byte(initConfig), 0600); err != nil {
		slog.Error("Failed to write file", "path", configPath, "error", err)
		os.Exit(1)
	}
	fmt.Printf("  Created %s\n", configPath)
	fmt.Println("Done. Point server and nats_url at your tourdesk instance, then:")
	fmt.Println("  tourchat login <your-name>")
	fmt.Println("  tourchat rooms list")
}
