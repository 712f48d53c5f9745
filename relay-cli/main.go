package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/compose-network/bonsai-relay/log"
	"github.com/compose-network/bonsai-relay/relay-cli/config"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "bonsai-relay",
		Short: "Bonsai Ethereum relay",
		Long: "Queries guest outputs as ABI call data, uploads guest images to Bonsai " +
			"and runs the relay that answers on-chain callback requests.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	queryCmd = &cobra.Command{
		Use:   "query GUEST [INPUT]",
		Short: "Print the ABI encoded output of a guest, or its image id when no input is given",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runQuery,
	}

	uploadCmd = &cobra.Command{
		Use:   "upload [GUEST]",
		Short: "Upload one or all guest images and print their ids",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runUpload,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the relay and upload all guest images",
		Args:  cobra.NoArgs,
		RunE:  runRelay,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   runVersion,
	}
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func execute() error {
	initCommands()
	return rootCmd.Execute()
}

func initCommands() {
	rootCmd.AddCommand(queryCmd, uploadCmd, runCmd, versionCmd)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (optional)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "enable pretty logging")
	rootCmd.PersistentFlags().String("guests", "", "guest manifest path")

	// Proving service flags
	rootCmd.PersistentFlags().String("bonsai-api-url", "", "Bonsai API URL")
	rootCmd.PersistentFlags().String("bonsai-api-key", "", "Bonsai API key")
	rootCmd.PersistentFlags().Bool("risc0-dev-mode", false, "execute guests without proving")

	// Relay flags
	runCmd.Flags().String("relay-address", "", "relay contract address")
	runCmd.Flags().String("eth-node", "", "Ethereum node URL")
	runCmd.Flags().Uint64("eth-chain-id", 0, "Ethereum chain id")
	runCmd.Flags().StringP("private-key", "p", "", "hex private key of the relay sender")
	runCmd.Flags().Uint64P("connection-retry-attempts", "a", 0, "maximum node connection attempts")
	runCmd.Flags().DurationP("connection-retry-interval", "i", 0, "delay between node connection retries")
}

func loadConfig(cmd *cobra.Command) (*config.Config, *log.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid flags: %w", err)
	}

	logger := log.New(cfg.Log.Level, cfg.Log.Pretty)
	logger.Debug().
		Str("config_file", cfgFile).
		Str("guests", cfg.Guests.Manifest).
		Str("bonsai_url", cfg.Bonsai.APIURL).
		Bool("dev_mode", cfg.DevMode).
		Str("log_level", cfg.Log.Level).
		Msg("Configuration loaded")
	return cfg, logger, nil
}

func newApp(cmd *cobra.Command) (*App, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return NewApp(cfg, logger.Logger)
}

func runQuery(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	var input *string
	if len(args) == 2 {
		input = &args[1]
	}
	return app.Query(cmd.Context(), args[0], input)
}

func runUpload(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	var target string
	if len(args) == 1 {
		target = args[0]
	}
	return app.Upload(cmd.Context(), target)
}

func runRelay(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger.Info().
		Str("version", Version).
		Str("git_commit", GitCommit).
		Str("go_version", runtime.Version()).
		Msg("Build information")

	app, err := NewApp(cfg, logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	return app.Run(cmd.Context())
}

func runVersion(*cobra.Command, []string) {
	fmt.Printf("Bonsai Relay\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Printf("Go Version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()

	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-pretty") {
		cfg.Log.Pretty, _ = flags.GetBool("log-pretty")
	}
	if flags.Changed("guests") {
		cfg.Guests.Manifest, _ = flags.GetString("guests")
	}

	if flags.Changed("bonsai-api-url") {
		cfg.Bonsai.APIURL, _ = flags.GetString("bonsai-api-url")
	}
	if flags.Changed("bonsai-api-key") {
		cfg.Bonsai.APIKey, _ = flags.GetString("bonsai-api-key")
	}
	if flags.Changed("risc0-dev-mode") {
		cfg.DevMode, _ = flags.GetBool("risc0-dev-mode")
	}

	if flags.Lookup("relay-address") == nil {
		return
	}
	if flags.Changed("relay-address") {
		cfg.Relay.Address, _ = flags.GetString("relay-address")
	}
	if flags.Changed("eth-node") {
		cfg.Relay.EthNode, _ = flags.GetString("eth-node")
	}
	if flags.Changed("eth-chain-id") {
		cfg.Relay.EthChainID, _ = flags.GetUint64("eth-chain-id")
	}
	if flags.Changed("private-key") {
		cfg.Relay.PrivateKey, _ = flags.GetString("private-key")
	}
	if flags.Changed("connection-retry-attempts") {
		cfg.Relay.Retry.Attempts, _ = flags.GetUint64("connection-retry-attempts")
	}
	if flags.Changed("connection-retry-interval") {
		cfg.Relay.Retry.Interval, _ = flags.GetDuration("connection-retry-interval")
	}
}
