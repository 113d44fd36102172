// submodule cmd contains command definitions
package main

import (
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/plexproxy/internal/formatter"
	"github.com/desertthunder/plexproxy/internal/services"
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func logLevelFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level (debug, info, warn, error); overrides log.level",
	}
}

// serveCommand runs the HTTP proxy.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the stream proxy HTTP server",
		Flags: []cli.Flag{
			configFlag(),
			logLevelFlag(),
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (host:port); overrides server.host and server.port",
			},
		},
		Action: r.Serve,
	}
}

// setupCommand handles first-run setup.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write the example configuration file",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupConfig,
			},
		},
	}
}

// plexCommand handles operator queries against the media server.
func plexCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "plex",
		Usage: "Query the Plex Media Server directly",
		Commands: []*cli.Command{
			{
				Name:  "playlists",
				Usage: "List playlists",
				Flags: []cli.Flag{
					configFlag(),
					logLevelFlag(),
					&cli.StringFlag{
						Name:  "type",
						Usage: "Playlist kind: music, video, photo or all",
						Value: "music",
					},
					&cli.IntFlag{
						Name:  "take",
						Usage: "Maximum number of playlists to return",
						Value: services.DefaultTake,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.PlexPlaylists,
			},
			{
				Name:  "playlist",
				Usage: "Show the playable tracks of a playlist",
				Flags: []cli.Flag{
					configFlag(),
					logLevelFlag(),
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Playlist rating key",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: table, csv, markdown or json",
						Value:   formatter.FormatTable,
					},
				},
				Action: r.PlexPlaylist,
			},
			{
				Name:  "track",
				Usage: "Print the part key a rating key resolves to",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "ratingKey",
					},
				},
				Flags:  []cli.Flag{configFlag(), logLevelFlag()},
				Action: r.PlexTrack,
			},
		},
	}
}
