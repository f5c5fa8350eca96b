/*
Copyright 2024 Settld Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/settld-io/settld"
	"github.com/settld-io/settld/config"
	"github.com/settld-io/settld/database"
	"github.com/settld-io/settld/internal/notification"
)

// Settld represents the CLI application, encapsulating the root Cobra command.
type Settld struct {
	cmd *cobra.Command
}

// settldInstance holds the service instance and its configuration for the
// lifetime of a command.
type settldInstance struct {
	settld *settld.Settld
	cnf    *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and initializes the service before any
// command runs.
func preRun(app *settldInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("settld.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newSettld, err := setupSettld(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.settld = newSettld
		app.cnf = cnf

		return nil
	}
}

// setupSettld connects the data source and builds the reconciliation service.
func setupSettld(cfg *config.Configuration) (*settld.Settld, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}
	return settld.NewSettld(db), nil
}

// NewCLI creates the command-line interface for the Settld server.
func NewCLI() *Settld {
	var configFile string
	s := &settldInstance{}

	var rootCmd = &cobra.Command{
		Use:   "settld",
		Short: "Settlement reconciliation server",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./settld.json", "Configuration file for the settld server")

	rootCmd.PersistentPreRunE = preRun(s)

	rootCmd.AddCommand(serverCommands(s))

	return &Settld{cmd: rootCmd}
}

func (w Settld) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
