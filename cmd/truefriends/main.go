package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/SejinDoesArt/twittertruefriends/internal/analyze"
	"github.com/SejinDoesArt/twittertruefriends/internal/cache"
	"github.com/SejinDoesArt/twittertruefriends/internal/config"
	"github.com/SejinDoesArt/twittertruefriends/internal/logging"
	"github.com/SejinDoesArt/twittertruefriends/internal/metrics"
	"github.com/SejinDoesArt/twittertruefriends/internal/oauthx"
	"github.com/SejinDoesArt/twittertruefriends/internal/session"
	"github.com/SejinDoesArt/twittertruefriends/internal/web"
	"github.com/SejinDoesArt/twittertruefriends/internal/xclient"
)

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "init":
		cmdInit()
	case "serve", "":
		cmdServe()
	default:
		printHelp()
	}
}

func printHelp() {
	fmt.Println("Usage: truefriends <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init        Create a config file at ./truefriends.yaml")
	fmt.Println("  serve       Run the web server (default)")
}

func cmdInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", "./truefriends.yaml", "path to write config")
	_ = fs.Parse(os.Args[2:])
	if err := config.Save(*path, config.Default()); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	abs, _ := filepath.Abs(*path)
	fmt.Println("Config written to:", abs)
}

func cmdServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "./truefriends.yaml", "config path")
	args := os.Args
	if len(args) > 1 && args[1] == "serve" {
		args = args[2:]
	} else {
		args = args[1:]
	}
	_ = fs.Parse(args)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		// No config file is fine for env-only deployments.
		cfg = config.Default()
		cfg.ResolveEnv()
	}
	if cfg.Twitter.ClientID == "" || cfg.Twitter.ClientSecret == "" {
		fmt.Println("warning: missing TWITTER_CLIENT / TWITTER_CLIENT_SECRET; OAuth will fail")
	}

	sessions, err := session.Open(cfg.Session.DBPath, time.Duration(cfg.Session.TTLSeconds)*time.Second)
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	defer sessions.Close()

	client := xclient.NewHTTPClient(cfg.Twitter.APIBaseURL)
	results := cache.New(time.Duration(cfg.Cache.TTLSeconds) * time.Second)
	analyzer := analyze.New(client, results, cfg.Limits.MaxTweets, cfg.Limits.TopN)
	exchanger := oauthx.NewExchanger(oauthx.Config{
		ClientID:     cfg.Twitter.ClientID,
		ClientSecret: cfg.Twitter.ClientSecret,
		CallbackURL:  cfg.Twitter.CallbackURL,
	})

	metrics.StartServer(cfg.Server.MetricsAddr)

	srv := web.NewServer(cfg, client, analyzer, sessions, exchanger)
	logging.Info("server_start", map[string]any{"addr": cfg.Server.Addr})
	if err := http.ListenAndServe(cfg.Server.Addr, srv.Router()); err != nil {
		logging.Error("server_exit", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}
