package cli

import (
	"fmt"

	"github.com/john/prayerlog/internal/youtube"
	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "auth",
		Short: "Authorize access to YouTube and Google Sheets and cache the token",
		RunE:  runAuth,
	})
}

func runAuth(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := readConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	oauthCfg, err := youtube.LoadOAuthConfig(cfg.Source.YouTube.ClientSecrets, googleScopes...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	token, err := youtube.Authorize(cmd.Context(), oauthCfg, func(url string) {
		fmt.Fprintf(out, "Open this URL in your browser to authorize prayerlog:\n\n%s\n\n", url)
	})
	if err != nil {
		return err
	}

	if err := youtube.SaveToken(cfg.Source.YouTube.TokenFile, token); err != nil {
		return err
	}
	fmt.Fprintf(out, "Token saved to %s\n", cfg.Source.YouTube.TokenFile)
	return nil
}
