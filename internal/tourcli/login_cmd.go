// login_cmd.go — mint a bearer token from the shared secret and store it.
package tourcli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/tourdesk/tourdesk/libauth"
)

const defaultTokenTTL = 24 * time.Hour

var loginCmd = &cobra.Command{
	Use:   "login <identity>",
	Short: "Mint a bearer token for an identity and store it in the config.",
	Long: `Mint a signed token for the given identity using the shared secret
(jwt_secret in .tourdesk/config.yaml or TOURDESK_JWT_SECRET) and write it
back to the config file so subsequent commands authenticate as that user.`,
	Args: cobra.ExactArgs(1),
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().Duration("expiry", defaultTokenTTL, "Token lifetime (e.g. 24h, 7d is not valid — use 168h)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	s, err := resolveSettings(cmd)
	if err != nil {
		return err
	}
	identity := args[0]
	if s.JWTSecret == "" {
		return fmt.Errorf("no signing secret: set jwt_secret in %s or TOURDESK_JWT_SECRET", filepath.Join(s.TourdeskDir, "config.yaml"))
	}
	ttl, _ := cmd.Flags().GetDuration("expiry")

	token, err := libauth.NewToken([]byte(s.JWTSecret), identity, ttl)
	if err != nil {
		return fmt.Errorf("failed to mint token: %w", err)
	}

	cfg, configPath, err := loadLocalConfig()
	if err != nil {
		return err
	}
	if configPath == "" {
		configPath = filepath.Join(s.TourdeskDir, "config.yaml")
	}
	cfg.Identity = identity
	cfg.Token = token
	if err := saveLocalConfig(configPath, cfg); err != nil {
		return err
	}
	fmt.Printf("Logged in as %s (token valid for %s), stored in %s\n", identity, ttl, configPath)
	return nil
}
