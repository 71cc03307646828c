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
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/blnkfinance/stkpush/config"
)

const redacted = "********"

// redactedConfig returns a copy of cfg with credentials masked.
func redactedConfig(cfg config.Configuration) config.Configuration {
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&cfg.Mpesa.ConsumerKey)
	mask(&cfg.Mpesa.ConsumerSecret)
	mask(&cfg.Mpesa.Passkey)
	mask(&cfg.Server.SecretKey)
	mask(&cfg.Recaptcha.SecretKey)
	mask(&cfg.DataSource.Dns)
	mask(&cfg.Redis.Dns)
	mask(&cfg.Notification.Slack.WebhookUrl)
	return cfg
}

func configCommands() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "print the loaded configuration with secrets masked",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Fetch()
			if err != nil {
				log.Fatalf("Error getting config: %v\n", err)
			}

			data, err := json.MarshalIndent(redactedConfig(*cfg), "", "    ")
			if err != nil {
				log.Fatalf("Error printing config: %v\n", err)
			}

			fmt.Println(string(data))
		},
	}
	return cmd
}
