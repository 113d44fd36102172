package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/plexproxy/internal/formatter"
	"github.com/desertthunder/plexproxy/internal/models"
	"github.com/desertthunder/plexproxy/internal/shared"
	"github.com/desertthunder/plexproxy/internal/ui"
)

// PlexPlaylists lists playlists of the requested kind.
func (r *Runner) PlexPlaylists(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	plex, err := r.plex(config)
	if err != nil {
		return err
	}

	kind := cmd.String("type")
	playlists, err := plex.ListPlaylists(ctx, kind, int(cmd.Int("take")))
	if err != nil {
		return fmt.Errorf("failed to list playlists: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(models.PlaylistsView{Playlists: playlists, Count: len(playlists)}, true)
	}

	r.writePlain("%s\n", ui.Styles.Title("%s %s playlists", humanize.Comma(int64(len(playlists))), kind))
	r.writePlain("%s\n", formatter.PlaylistsTable(playlists))
	return nil
}

// PlexPlaylist prints the playable tracks of one playlist.
func (r *Runner) PlexPlaylist(ctx context.Context, cmd *cli.Command) error {
	id := cmd.String("id")
	if id == "" {
		return fmt.Errorf("%w: --id", shared.ErrMissingArgument)
	}

	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	plex, err := r.plex(config)
	if err != nil {
		return err
	}

	tracks, err := plex.ExpandPlaylist(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to expand playlist %s: %w", id, err)
	}

	format := cmd.String("format")
	data, err := formatter.Render(format, "Playlist "+id, tracks)
	if err != nil {
		return err
	}

	if format == "" || format == formatter.FormatTable {
		r.writePlain("%s\n", ui.Styles.Title("Playlist %s: %d playable tracks", id, len(tracks)))
	}
	return r.writePlain("%s", data)
}

// PlexTrack prints the part key behind a rating key.
func (r *Runner) PlexTrack(ctx context.Context, cmd *cli.Command) error {
	ratingKey := cmd.StringArg("ratingKey")
	if ratingKey == "" {
		return fmt.Errorf("%w: ratingKey", shared.ErrMissingArgument)
	}

	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	plex, err := r.plex(config)
	if err != nil {
		return err
	}

	key, err := plex.ResolveTrackLocator(ctx, ratingKey)
	if err != nil {
		r.writePlain("%s\n", ui.Styles.Err("No playable part for %s", ratingKey))
		return err
	}
	return r.writePlain("%s\n", key)
}
