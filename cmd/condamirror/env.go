package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"condamirror/channel"
	"condamirror/config"
	"condamirror/internal/logging"
)

// resolvedFlags is the outcome of merging a loaded EnvironmentConfig
// with the persistent flags a subcommand was invoked with, the way
// stagecraft's commands.ResolveFlags layers CLI flags over config file
// values.
type resolvedFlags struct {
	cfg    config.EnvironmentConfig
	log    logging.Logger
	reader channel.Reader
}

func resolveEnv(cmd *cobra.Command) (resolvedFlags, error) {
	configPath, _ := cmd.Flags().GetString("config")
	baseURL, _ := cmd.Flags().GetString("base-url")
	verbose, _ := cmd.Flags().GetBool("verbose")
	subdirs, _ := cmd.Flags().GetStringSlice("subdir")

	var cfg config.EnvironmentConfig
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return resolvedFlags{}, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	} else if baseURL != "" {
		cfg = config.Default(baseURL)
	} else {
		return resolvedFlags{}, fmt.Errorf("either --config or --base-url is required")
	}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if len(subdirs) > 0 {
		cfg.Subdirs = subdirs
	}
	if verbose {
		cfg.Verbose = true
	}

	log := logging.NewStandard(cfg.Verbose)
	reader, err := newReader(cfg, log)
	if err != nil {
		return resolvedFlags{}, err
	}
	return resolvedFlags{cfg: cfg, log: log, reader: reader}, nil
}

// newReader picks channel.Local or channel.HTTP based on cfg.BaseURL's
// scheme: a channel is either a local directory tree or an HTTP(S)
// endpoint.
func newReader(cfg config.EnvironmentConfig, log logging.Logger) (channel.Reader, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		client := &http.Client{Timeout: cfg.HTTPTimeout}
		return channel.NewHTTP(strings.TrimSuffix(cfg.BaseURL, "/"), client, log), nil
	}
	return channel.NewLocal(cfg.BaseURL, "", log), nil
}
