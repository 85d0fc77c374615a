package main

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bdobrica/Kotoba/internal/kotoba/config"
)

type rootFlags struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:          "kotoba",
		Short:        "Conversational relay for Telegram, Farcaster and X",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "YAML config file (optional)")
	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")

	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newJobCmd(flags))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// load reads the dotenv file, the environment and the optional config file
// into a snapshot. A missing dotenv file is not an error. Dotenv values are
// re-read on every call and never exported to the process environment; a
// variable set in the real environment takes precedence over them.
func (f *rootFlags) load() (*config.Snapshot, *viper.Viper, error) {
	v, err := config.NewViper(f.configPath)
	if err != nil {
		return nil, nil, err
	}
	if f.envFile != "" {
		vals, err := godotenv.Read(f.envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, nil, err
		}
		for k, val := range vals {
			if _, set := os.LookupEnv(k); !set {
				v.Set(strings.ToLower(k), val)
			}
		}
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

// loader adapts load to app.Loader.
func (f *rootFlags) loader() (*config.Snapshot, error) {
	cfg, _, err := f.load()
	return cfg, err
}
