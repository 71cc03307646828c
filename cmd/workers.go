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
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"

	"github.com/blnkfinance/stkpush/config"
	redis_db "github.com/blnkfinance/stkpush/internal/redis-db"
)

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

func initializeQueues(cfg *config.Configuration) map[string]int {
	return map[string]int{cfg.Queue.StatusQueue: 1}
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.QueueOptions(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, errors.Wrap(err, "error parsing Redis URL")
	}

	return asynq.NewServer(redisOption, asynq.Config{
		Concurrency: 2,
		Queues:      queues,
	}), nil
}

func initializeTaskHandlers(b *bridgeInstance, mux *asynq.ServeMux) {
	mux.HandleFunc(b.cnf.Queue.StatusQueue, b.bridge.ProcessStatusCheck)
}

// workerCommands starts the deferred status-check worker together with the asynqmon
// dashboard.
func workerCommands(b *bridgeInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start the status check workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			conf := b.cnf
			if !conf.RedisEnabled() {
				log.Fatal("workers need redis. set redis.dns in the config")
			}

			shutdown, err := initializeObservability(ctx, conf)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			closeRelay, err := attachRelay(ctx, b.broadcaster, conf)
			if err != nil {
				logrus.WithError(err).Warn("redis relay unavailable, worker outcomes will not be streamed")
				closeRelay = func() {}
			}
			defer closeRelay()

			srv, err := initializeWorkerServer(conf, initializeQueues(conf))
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			initializeTaskHandlers(b, mux)

			redisOption, _ := redis_db.QueueOptions(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
			h := asynqmon.New(asynqmon.Options{
				RootPath:     "/monitoring",
				RedisConnOpt: redisOption,
			})

			go func() {
				monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
				log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
				if err := http.ListenAndServe(monitoringAddr, h); err != nil {
					log.Fatalf("could not start asynqmon server: %v", err)
				}
			}()

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
