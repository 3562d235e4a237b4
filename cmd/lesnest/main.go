/*
Copyright © 2024 the LESNest authors.
This file is part of LESNest.

LESNest is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

LESNest is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with LESNest.  If not, see <http://www.gnu.org/licenses/>.
*/

// Command lesnest generates initial and boundary conditions for nested
// large-eddy simulations from reanalysis data.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/spatialmodel/lesnest"
)

var (
	configFile string
	logLevel   string
)

var root = &cobra.Command{
	Use:   "lesnest",
	Short: "lesnest creates boundary conditions for nested LES domains",
	Long: `lesnest interpolates reanalysis data onto nested large-eddy
simulation domains, corrects the winds to be divergence free, and
writes the simulation model's initial and lateral boundary files.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		lvl, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %v", logLevel, err)
		}
		logrus.SetLevel(lvl)
		return nil
	},
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the preprocessing described by the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := lesnest.LoadConfig(configFile)
		if err != nil {
			return err
		}
		return cfg.Run()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("lesnest v%s\n", lesnest.Version)
	},
}

func init() {
	root.PersistentFlags().StringVar(&configFile, "config", "lesnest.toml", "configuration file location")
	root.PersistentFlags().StringVar(&logLevel, "loglevel", "info", "log level (debug, info, warning, error)")
	root.AddCommand(runCmd, versionCmd)
}

func main() {
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
