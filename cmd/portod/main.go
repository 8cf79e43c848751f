// Command portod is the container supervisor daemon.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/paivaric/porto/config"
	"github.com/paivaric/porto/daemon"
)

func main() {
	var configPath string

	cmd := &cobra.Command{
		Use:   "portod",
		Short: "porto container supervisor daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			log := logrus.New()
			level, err := logrus.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			log.SetLevel(level)

			d, err := daemon.New(cfg, log)
			if err != nil {
				return err
			}
			return d.Run()
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to portod.yml")

	if err := cmd.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}
