// Command muonbase wires the document store, the user pool, and the
// five API handlers into a Server and runs its event loop until a
// shutdown signal arrives.
//
// Command-line parsing and daemonization live outside this binary; it
// only reads a config file path from argv[1] (default "config.json") and
// logs to the file named by the config's log_path, or to stdout when
// that is empty.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/jhegemann/muonbase/internal/api"
	"github.com/jhegemann/muonbase/internal/config"
	"github.com/jhegemann/muonbase/internal/docstore"
	"github.com/jhegemann/muonbase/internal/httpproto"
	"github.com/jhegemann/muonbase/internal/httpserver"
	"github.com/jhegemann/muonbase/internal/userpool"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := "config.json"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg := config.Defaults()
	if _, err := os.Stat(configPath); err == nil {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.LogPath != "" {
		f, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("muonbase: open log path: %w", err)
		}
		defer f.Close()
		logger = zerolog.New(f).With().Timestamp().Logger()
	}

	if cfg.WorkingDirectory != "" {
		if err := os.Chdir(cfg.WorkingDirectory); err != nil {
			return fmt.Errorf("muonbase: chdir: %w", err)
		}
	}

	store := docstore.New(cfg.DataPath, logger)
	users := userpool.New(cfg.UserPath)

	server := httpserver.NewServer(cfg.IP, cfg.Port, logger)
	if err := server.RegisterService(api.DatabaseService, store); err != nil {
		return err
	}
	if err := server.RegisterService(api.UserService, users); err != nil {
		return err
	}

	routes := []struct {
		method  httpproto.Method
		url     string
		handler httpserver.Handler
	}{
		{httpproto.MethodPOST, "/insert", api.Insert},
		{httpproto.MethodPOST, "/erase", api.Erase},
		{httpproto.MethodPOST, "/find", api.Find},
		{httpproto.MethodGET, "/keys", api.Keys},
		{httpproto.MethodGET, "/image", api.Image},
	}
	for _, route := range routes {
		if err := server.RegisterHandler(route.method, route.url, route.handler); err != nil {
			return err
		}
	}

	logger.Info().Str("ip", cfg.IP).Int("port", cfg.Port).Msg("starting muonbase")
	return server.Serve()
}
