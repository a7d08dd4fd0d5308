package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/sajilochat/relay/pkg/logging"
	"github.com/sajilochat/relay/pkg/server"
	"github.com/sajilochat/relay/pkg/store"
	"github.com/sajilochat/relay/pkg/version"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (flags override its values)")

	cfg := server.DefaultConfig()
	flag.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "TCP bind address")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite credentials database path (empty = in-memory)")
	flag.BoolVar(&cfg.RequireAuth, "auth", cfg.RequireAuth, "Require REGISTER/LOGIN credentials at handshake")
	flag.StringVar(&cfg.TokenSecret, "secret", cfg.TokenSecret, "Token signing secret (empty = random per process)")
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "HTTP bind address for /metrics (empty to disable)")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: "+logging.LevelNames())
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text or json")
	showVersion := flag.Bool("version", false, "Print version and exit")

	// Config file seeds the values, explicitly set flags win.
	flag.Parse()
	if *configPath != "" {
		loaded, err := server.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid config file: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
		flag.Visit(func(f *flag.Flag) {
			_ = flag.Set(f.Name, f.Value.String())
		})
	}

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if err := logging.Setup(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	var st store.CredentialStore
	if cfg.DBPath == "" {
		slog.Warn("no database path, credentials will not survive a restart")
		st = store.NewMemory()
	} else {
		var err error
		st, err = store.OpenSQL(cfg.DBPath)
		if err != nil {
			slog.Error("open database", "err", err)
			os.Exit(1)
		}
	}

	srv, err := server.New(cfg, server.Dependencies{Store: st})
	if err != nil {
		slog.Error("server setup", "err", err)
		os.Exit(1)
	}

	slog.Info("relay starting", "version", version.String())
	if err := srv.Run(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
