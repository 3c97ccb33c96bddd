package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	var (
		configPath  string
		showVersion bool
		env         string
		inputFile   string
		replay      bool
		serve       bool
	)

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/triage/config.yml)")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.StringVar(&env, "env", "dev", "environment profile: dev or prod")
	flag.StringVar(&inputFile, "input-file", "", "analyze a local NDJSON export instead of querying Loki")
	flag.BoolVar(&replay, "replay", false, "re-analyze the unprocessed tail of the archive instead of querying Loki")
	flag.BoolVar(&serve, "serve", false, "keep serving the HTTP API after the analysis run")
	flag.Parse()

	if showVersion {
		fmt.Printf("Triage - Error Pattern Clustering Engine\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadConfig(configPath, env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	cfg.InputFile = inputFile
	cfg.Replay = replay
	cfg.ServeEnabled = cfg.ServeEnabled || serve

	if cfg.Replay && cfg.InputFile != "" {
		fmt.Fprintln(os.Stderr, "Error: --replay and --input-file are mutually exclusive")
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(configPath, env string) (appConfig, error) {
	var cfg appConfig

	if env != envDev && env != envProd {
		return cfg, fmt.Errorf("invalid env %q: must be %s or %s", env, envDev, envProd)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("TRIAGE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	setDefaults(v, home)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "triage", "config.yml"))
	}

	fileRead := true
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
		fileRead = false
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	// ConfigFileUsed reports the configured path even when nothing was
	// read, so only a successful read counts.
	if fileRead {
		cfg.ConfigPath = v.ConfigFileUsed()
	}
	cfg.Env = env

	applyEnvironment(&cfg)

	// Expand ~ in file paths.
	for _, p := range []*string{&cfg.DBPath, &cfg.ArchivePath, &cfg.RulesPath, &cfg.ReportPath} {
		if strings.HasPrefix(*p, "~/") {
			*p = filepath.Join(home, (*p)[2:])
		}
	}

	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(defaultBindHost, strconv.Itoa(cfg.APIPort))
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
