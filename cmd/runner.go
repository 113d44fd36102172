package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/plexproxy/internal/services"
	"github.com/desertthunder/plexproxy/internal/shared"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	resolver   services.Resolver
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	dotenv     string
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	Resolver   services.Resolver // Built from config on first use when nil
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Dotenv     string // Path of the optional .env file
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Dotenv == "" {
		opts.Dotenv = ".env"
	}

	return &Runner{
		config:     opts.Config,
		resolver:   opts.Resolver,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		dotenv:     opts.Dotenv,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){serveCommand, setupCommand, plexCommand} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig resolves the effective config for a command: the file named by --config
// (when present) over the embedded defaults, then the environment, then --log-level.
func (r *Runner) loadConfig(cmd *cli.Command) (*shared.Config, error) {
	config := r.config

	if path := cmd.String("config"); path != "" {
		if _, err := os.Stat(path); err == nil {
			loaded, err := shared.LoadConfig(path)
			if err != nil {
				return nil, err
			}
			config = loaded
		} else {
			r.logger.Debug("config file not found, using defaults", "path", path)
		}
	}

	if err := shared.ApplyEnv(config, r.dotenv); err != nil {
		return nil, err
	}

	if level := cmd.String("log-level"); level != "" {
		config.Log.Level = level
	}
	if err := shared.SetLogLevel(r.logger, config.Log.Level); err != nil {
		return nil, err
	}

	r.config = config
	return config, nil
}

// newPlexService builds a media server client from config.
func (r *Runner) newPlexService(config *shared.Config) (*services.PlexService, error) {
	if config.Plex.Token == "" {
		return nil, fmt.Errorf("%w: set plex.token or PLEX_TOKEN", shared.ErrMissingCredentials)
	}

	client := r.httpClient
	if client == nil {
		client = services.NewHTTPClient(config.Plex.Timeout)
	}

	return services.NewPlexService(services.PlexOpts{
		UpstreamOpts: services.UpstreamOpts{
			BaseURL:          config.Plex.BaseURL,
			Token:            config.Plex.Token,
			ClientIdentifier: config.Plex.ClientIdentifier,
			Product:          config.Plex.Product,
			Client:           client,
		},
		MetadataRPS: config.Upstream.MetadataRPS,
		Timeout:     config.Plex.Timeout,
	}), nil
}

// plex returns the injected resolver or one built from config.
func (r *Runner) plex(config *shared.Config) (services.Resolver, error) {
	if r.resolver != nil {
		return r.resolver, nil
	}
	svc, err := r.newPlexService(config)
	if err != nil {
		return nil, err
	}
	r.resolver = svc
	return svc, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
