/*
Copyright 2024 Blnk Finance Authors.

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

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/stkpush"
	"github.com/blnkfinance/stkpush/broadcast"
	"github.com/blnkfinance/stkpush/config"
	"github.com/blnkfinance/stkpush/database"
	"github.com/blnkfinance/stkpush/gateway"
	"github.com/blnkfinance/stkpush/internal/notification"
	"github.com/blnkfinance/stkpush/internal/recaptcha"
)

// StkPush wraps the root cobra command.
type StkPush struct {
	cmd *cobra.Command
}

// bridgeInstance is the runtime state shared by every subcommand.
type bridgeInstance struct {
	bridge      *stkpush.Bridge
	broadcaster *broadcast.Broadcaster
	queue       *stkpush.Queue
	cnf         *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and builds the bridge before any subcommand runs.
func preRun(app *bridgeInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config ", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		if err := setupBridge(app, cnf); err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}
		app.cnf = cnf

		return nil
	}
}

// setupBridge wires the gateway client, the outcome store and the broadcaster. The
// human check and the deferred status worker are only enabled when configured.
func setupBridge(app *bridgeInstance, cfg *config.Configuration) error {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return errors.Wrap(err, "error getting datasource")
	}

	client := gateway.NewClient(gateway.ConfigFrom(cfg))
	app.broadcaster = broadcast.New(cfg.KeepAlive())

	var opts []stkpush.Option
	if cfg.Recaptcha.SecretKey != "" {
		opts = append(opts, stkpush.WithVerifier(recaptcha.NewVerifier(cfg.Recaptcha.SecretKey, cfg.Recaptcha.VerifyURL)))
	}
	if cfg.RedisEnabled() {
		queue, err := stkpush.NewQueue(cfg)
		if err != nil {
			return errors.Wrap(err, "error creating status queue")
		}
		app.queue = queue
		opts = append(opts, stkpush.WithStatusScheduler(queue))
	}

	app.bridge = stkpush.NewBridge(client, db, app.broadcaster, opts...)
	return nil
}

// NewCLI builds the root command and registers the subcommands.
func NewCLI() *StkPush {
	var configFile string
	b := &bridgeInstance{}

	var rootCmd = &cobra.Command{
		Use:   "stkpush",
		Short: "M-Pesa STK Push payment bridge",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./stkpush.json", "Configuration file for the payment bridge")
	rootCmd.PersistentPreRunE = preRun(b, &configFile)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(migrateCommands(b))
	rootCmd.AddCommand(configCommands())
	rootCmd.AddCommand(pushCommands(b))
	rootCmd.AddCommand(statusCommands(b))

	return &StkPush{cmd: rootCmd}
}

func (s StkPush) executeCLI() {
	if err := s.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
