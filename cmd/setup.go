package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/plexproxy/internal/shared"
	"github.com/desertthunder/plexproxy/internal/ui"
)

// SetupConfig writes the embedded example configuration to --config.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if err := shared.CreateConfigFile(configPath); err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}

	r.logger.Info("config file created", "path", configPath)
	r.writePlainln("%s", ui.Styles.OK("Config written to %s", configPath))
	r.writePlain("%s\n", ui.Styles.Help("Set plex.token (or PLEX_TOKEN), then run: plexproxy serve -c %s", configPath))
	return nil
}
