// cli.go holds the tourchat CLI entrypoint (Main), default constants, flags, and merge logic.
package tourcli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

const (
	defaultServer = "http://127.0.0.1:8080"
	defaultNATS   = "nats://127.0.0.1:4222"
)

// Main runs the tourchat CLI.
func Main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tourchat",
	Short: "Operations chat client: rooms, live chat, and attachments from the terminal.",
	Long: `Tourchat is the terminal client for the tourdesk chat server. It talks
REST for rooms and history and NATS for live messaging, with optimistic
sends that reconcile against server confirmations.

  Quickstart:
    tourchat init                      # scaffold .tourdesk/config.yaml
    tourchat login alice               # mint and store a token
    tourchat rooms new "Front desk"    # create a room
    tourchat rooms list                # list rooms with previews
    tourchat chat <room-id>            # join a room interactively

  Inside chat, plain lines send messages; /help lists the slash commands.`,
	SilenceUsage: true,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.String("server", defaultServer, "Base URL of the chat API server")
	f.String("nats", defaultNATS, "NATS URL for live messaging")
	f.String("token", "", "Bearer token (overrides the stored one)")
	f.Bool("trace", false, "Enable operation telemetry on stderr")

	rootCmd.AddCommand(initCmd, loginCmd, roomsCmd, chatCmd)
	rootCmd.InitDefaultHelpCmd()
}

// resolveSettings loads the config file and merges it with the root flags.
func resolveSettings(cmd *cobra.Command) (settings, error) {
	cfg, configPath, err := loadLocalConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		return settings{}, err
	}
	flags := cmd.Root().PersistentFlags()
	changed := func(name string) bool { return flags.Changed(name) }
	flagServer, _ := flags.GetString("server")
	flagNATS, _ := flags.GetString("nats")
	flagToken, _ := flags.GetString("token")
	flagTrace, _ := flags.GetBool("trace")
	return mergeSettings(cfg, configPath, flagServer, flagNATS, flagToken, flagTrace, changed)
}
