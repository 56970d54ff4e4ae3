package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eigerco/pvmhost/internal/store"
	"github.com/eigerco/pvmhost/pkg/db/pebble"
	"github.com/eigerco/pvmhost/pkg/log"
)

var rootCmd = &cobra.Command{
	Use:   "pvmhost",
	Short: "Run JAM service programs against a local service state",
	Long: "pvmhost inspects PVM program containers and runs their accumulate and on-transfer " +
		"entry points against service accounts kept in a pebble database.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := log.ParseLogLevel(getString(cmd, "log-level"))
		if err != nil {
			return err
		}
		loggerType, err := log.ParseLoggerType(getString(cmd, "log-type"))
		if err != nil {
			return err
		}
		log.Init(log.Options{LogLevel: level, Type: loggerType, Out: os.Stderr})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "log level: trace, debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-type", "console", "log output: console or json")

	rootCmd.AddCommand(inspectCmd, deployCmd, accumulateCmd, readCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getString(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(err)
	}
	return v
}

func getUint64(cmd *cobra.Command, name string) uint64 {
	v, err := cmd.Flags().GetUint64(name)
	if err != nil {
		panic(err)
	}
	return v
}

func getUint32(cmd *cobra.Command, name string) uint32 {
	v, err := cmd.Flags().GetUint32(name)
	if err != nil {
		panic(err)
	}
	return v
}

// addStateFlags registers the flags naming the state database and the service
func addStateFlags(cmd *cobra.Command) {
	cmd.Flags().String("state", "pvmhost-state", "directory of the service state database")
	cmd.Flags().Uint32("service", 1<<16, "service id")
}

// openServices opens the state database named by the flags, the returned func closes it
func openServices(cmd *cobra.Command) (*store.Services, func(), error) {
	kv, err := pebble.NewKVStore(pebble.WithPath(getString(cmd, "state")))
	if err != nil {
		return nil, nil, fmt.Errorf("open state: %w", err)
	}
	services := store.NewServices(kv)
	return services, func() {
		_ = services.Close()
		if err := kv.Close(); err != nil {
			log.Root.Error().Err(err).Msg("closing state")
		}
	}, nil
}
