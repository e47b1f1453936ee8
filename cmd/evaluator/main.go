package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/CZERTAINLY/Evaluator/internal/log"
	"github.com/CZERTAINLY/Evaluator/internal/model"
	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"
)

var (
	userConfigPath string // /default/config/path/evaluator on given OS
	configPath     string // actual config file used (if loaded)
	config         model.Config

	flagConfigFilePath string // value of --config flag
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "evaluator")
}

func main() {
	// root flags
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is evaluator.yaml in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().Bool("verbose", false, "verbose logging")

	serveCmd.Flags().String("listen", "", "address of the HTTP API, overrides service.listen")
	serveCmd.Flags().Int("max-concurrency", 0, "maximum of concurrently running jobs, overrides service.max_concurrency")
	serveCmd.Flags().String("root", "", "storage root, overrides storage.root")

	// never print messages
	rootCmd.SilenceErrors = true

	// parse or create a config, setup logging
	rootCmd.PersistentPreRunE = initEvaluator

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("evaluator failed", "err", err)
		os.Exit(exitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:          "evaluator",
	Short:        "Runs evaluation jobs and serves their results",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve starts the HTTP API and the job supervisor",
	Args:  cobra.NoArgs,
	RunE:  doServe,
}

var execCmd = &cobra.Command{
	Use:   "exec -- command [args...]",
	Short: "exec runs a single command under the supervisor and prints its final status",
	Args:  cobra.MinimumNArgs(1),
	RunE:  doExec,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provide version of an evaluator",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("evaluator: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config:    %s\n", configPath)
		}
		fmt.Printf("evaluator: %s\n", info.Main.Version)
		fmt.Printf("go:        %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:    %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:      %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:     %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

func initEvaluator(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("EVALUATORCONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{userConfigPath, "."} {
			path := filepath.Join(d, "evaluator.yaml")
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	if configPath == "" {
		var err error
		configPath, err = storeDefault(filepath.Join(userConfigPath, "evaluator.yaml"))
		if err != nil {
			return err
		}
	} else {
		var err error
		config, err = loadConfig(configPath)
		if err != nil {
			return err
		}
	}

	// flags and EVALUATOR_* variables have a precedence over config file
	v := model.NewViper()
	binds := map[string]string{
		"service.verbose":         "verbose",
		"service.listen":          "listen",
		"service.max_concurrency": "max-concurrency",
		"storage.root":            "root",
	}
	for key, name := range binds {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("binding flag --%s: %w", name, err)
			}
		}
	}
	config.Override(v)

	slog.SetDefault(log.New(os.Stderr, config.Service.IsVerbose()))

	slog.Debug("evaluator run", "configPath", configPath)
	slog.Debug("evaluator run", "config", config)
	return nil
}

func storeDefault(path string) (string, error) {
	config = model.DefaultConfig(context.Background())
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return "", fmt.Errorf("creating directory %s: %w", filepath.Dir(path), err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating file %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(config); err != nil {
		return "", fmt.Errorf("storing configuration: %w", err)
	}
	return path, enc.Close()
}

func loadConfig(path string) (model.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Config{}, fmt.Errorf("opening config file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	cfg, err := model.LoadConfig(f)
	if err != nil {
		for _, d := range model.CueErrDetails(err) {
			slog.Error(d.String(), d.Attr("detail"))
		}
		return model.Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
