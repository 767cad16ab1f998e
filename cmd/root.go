package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/scoutgame/scoutd/config"
	"github.com/scoutgame/scoutd/exit"
	"github.com/scoutgame/scoutd/node"
	"github.com/scoutgame/scoutd/rewards"
	"github.com/scoutgame/scoutd/srv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.PersistentFlags().String("log", "info", "Change the logging level. Can choose from 'trace', 'debug', 'info', 'warn', 'error', or 'fatal'")
	rootCmd.PersistentFlags().StringP("scoutd", "s", srv.ScoutdDefault, "The url to the scoutd endpoint without a trailing slash")
	rootCmd.PersistentFlags().String("api", ":8070", "Change the api listening address for the api")
	rootCmd.PersistentFlags().String("config", "", "Optional file location of the config file")

	rootCmd.Flags().String("dbmode", "", "Turn on custom sqlite modes")
	rootCmd.Flags().Bool("wal", false, "Turn on WAL mode for sqlite")
}

// Execute is cobra's entry point
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:              "scoutd",
	Short:            "scoutd settles builder nft purchases and airdrop claims, and serves airdrop proofs",
	PersistentPreRun: always,
	PreRun:           ReadConfig,
	Run: func(cmd *cobra.Command, args []string) {
		// Handle ctl+c
		ctx, cancel := context.WithCancel(context.Background())
		exit.GlobalExitHandler.AddCancel(cancel)

		// Get the config
		conf := viper.GetViper()
		node, err := node.NewScoutd(ctx, conf)
		if err != nil {
			log.WithError(err).Errorf("failed to launch scout node")
			os.Exit(1)
		}
		exit.GlobalExitHandler.AddExit(node.Close)

		apiserver := srv.NewAPIServer(conf, node)
		apiserver.Start(ctx.Done())

		// Run
		node.SettlementSync(ctx)
	},
}

// always is run before any command
func always(cmd *cobra.Command, args []string) {
	// Secrets such as the deployer key can live in a .env file
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("failed to load .env")
	}

	// Setup config reading
	if cFilePath, _ := cmd.Flags().GetString("config"); cFilePath != "" {
		viper.SetConfigFile(cFilePath)
	} else {
		viper.SetConfigName("scoutd-conf")
		// Add as many config paths as we want to check
		viper.AddConfigPath("$HOME/.scoutd")
		viper.AddConfigPath(".")
	}

	// SCOUTD_AIRDROP_DEPLOYERKEY sets airdrop.deployerkey
	viper.SetEnvPrefix("SCOUTD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Setup global command line flag overrides
	// This gets run before any command executes. It will init global flags to the config
	_ = viper.BindPFlag(config.LoggingLevel, cmd.Flags().Lookup("log"))
	_ = viper.BindPFlag(config.Scoutd, cmd.Flags().Lookup("scoutd"))
	_ = viper.BindPFlag(config.APIListen, cmd.Flags().Lookup("api"))
	_ = viper.BindPFlag(config.SQLDBWalMode, cmd.Flags().Lookup("wal"))
	_ = viper.BindPFlag(config.CustomSQLDBMode, cmd.Flags().Lookup("dbmode"))

	// Also init some defaults
	viper.SetDefault(config.SqliteDBPath, "$HOME/.scoutd/mainnet/sql.db")
	viper.SetDefault(config.SettlementRetryPeriod, time.Second*10)
	viper.SetDefault(config.SettlementWorkers, 4)
	viper.SetDefault(config.SettlementMaxAttempts, 10)
	viper.SetDefault(config.SettlementStuckAfter, time.Minute*15)
	viper.SetDefault(config.SettlementTimeout, time.Minute*10)
	viper.SetDefault(config.SettlementBatchSize, 100)
	viper.SetDefault(config.AirdropTreeTimeout, time.Minute)
	viper.SetDefault(config.NFTChainID, config.Base.ID)
	viper.SetDefault(config.BuilderBps, rewards.DefaultBuilderBps)
	viper.SetDefault(config.TopBuilders, rewards.DefaultTopBuilders)
	viper.SetDefault(config.RankDecay, rewards.DefaultRankDecay)
	viper.SetDefault(config.DecentAPI, node.DecentDefaultAPI)
	for _, chain := range config.Chains {
		viper.SetDefault(config.ChainRPC(chain.ID), chain.DefaultRPC)
	}

	// Catch ctl+c
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	go func() {
		<-signalChan
		log.Info("Gracefully closing")
		exit.GlobalExitHandler.Close()

		log.Info("closing application")
		// If something is hanging, we have to kill it
		os.Exit(0)
	}()
}

// ReadConfig can be put as a PreRun for a command that uses the config file
func ReadConfig(cmd *cobra.Command, args []string) {
	err := viper.ReadInConfig()

	// If no config is found, we will attempt to make one
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// No config found? We will write the default config for the user
		// If the custom config path is set, then we should not write a new config.
		if custom, _ := cmd.Flags().GetString("config"); custom == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				log.WithError(err).Fatal("failed to create config path")
			}

			// Create the scoutd directory if it is not already
			err = os.MkdirAll(filepath.Join(home, ".scoutd"), 0777)
			if err != nil {
				log.WithError(err).Fatal("failed to create config path")
			}

			configpath := filepath.Join(home, ".scoutd", "scoutd-conf.toml")
			if _, err := os.Stat(configpath); err == nil { // Double check a file does not already exist. Don't overwrite a config
				log.WithField("path", configpath).Fatal("config exists, but unable to read")
			}

			// Attempt to write a new config file
			err = viper.WriteConfigAs(configpath)
			if err != nil {
				log.WithField("path", configpath).WithError(err).Fatal("failed to create config")
			}
			// Inform the user we made a config
			log.WithField("path", configpath).Infof("no config file, one was created")

			// Try to read it again
			err = viper.ReadInConfig()
			if err != nil {
				log.WithError(err).Fatal("failed to load config")
			}
		}
	} else if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	// Indicate which config was used
	log.Infof("Using config from %s", viper.ConfigFileUsed())

	initLogger()
}

// SoftReadConfig will not fail. It can be used for a command that needs the config,
// but is happy with the defaults
func SoftReadConfig(cmd *cobra.Command, args []string) {
	err := viper.ReadInConfig()
	if err != nil {
		log.WithError(err).Debugf("failed to load config")
	}

	initLogger()
}

func initLogger() {
	switch strings.ToLower(viper.GetString(config.LoggingLevel)) {
	case "trace":
		log.SetLevel(log.TraceLevel)
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	case "fatal":
		log.SetLevel(log.FatalLevel)
	}
}
