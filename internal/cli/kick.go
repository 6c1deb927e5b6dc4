package cli

import (
	"fmt"

	"github.com/john/prayerlog/internal/config"
	"github.com/john/prayerlog/internal/kick"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:     "kick-resolve [channel...]",
		Short:   "Resolve Kick chatroom ids for the config file",
		Example: "  prayerlog kick-resolve igrejaaovivo cultodomingo",
		RunE:    runKickResolve,
	})
}

func runKickResolve(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := readConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	slugs := args
	if len(slugs) == 0 {
		for _, ch := range cfg.Source.Kick.Channels {
			slugs = append(slugs, ch.Slug)
		}
	}
	if len(slugs) == 0 {
		return fmt.Errorf("no channels given and none configured")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Resolving %d Kick channel(s)...\n\n", len(slugs))

	conn := kick.New(nil, logger)
	var resolved []kick.ChannelConfig
	for _, slug := range slugs {
		info, err := conn.ResolveChannel(cmd.Context(), slug)
		if err != nil {
			fmt.Fprintf(out, "✗ %s: %v\n", slug, err)
			continue
		}
		fmt.Fprintf(out, "✓ %s: %d\n", slug, info.Chatroom.ID)
		resolved = append(resolved, kick.ChannelConfig{Slug: slug, ChatroomID: info.Chatroom.ID})
	}

	if len(resolved) == 0 {
		return fmt.Errorf("no channels resolved")
	}

	snippet := map[string]any{"source": map[string]any{
		"platform": config.PlatformKick,
		"kick":     config.KickConfig{Channels: resolved},
	}}
	b, err := yaml.Marshal(snippet)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nAdd this to your config.yaml:\n---\n%s", b)
	return nil
}
