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
	"log"
	"net/http"

	"github.com/caddyserver/certmagic"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/stkpush/api"
	"github.com/blnkfinance/stkpush/broadcast"
	"github.com/blnkfinance/stkpush/config"
	redis_db "github.com/blnkfinance/stkpush/internal/redis-db"
	"github.com/blnkfinance/stkpush/internal/traces"
)

const certStoragePath = "./certmagic"

// serveTLS serves the router over HTTPS with certificates managed by certmagic. The
// gateway only delivers callbacks to HTTPS endpoints.
func serveTLS(r *gin.Engine, conf config.ServerConfig) error {
	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.Email = conf.Email
	cfg := certmagic.NewDefault()
	cfg.Storage = &certmagic.FileStorage{Path: certStoragePath}

	domains := []string{conf.Domain}
	if conf.Domain == "" {
		log.Println("No domain specified, defaulting to localhost")
		domains = []string{"localhost"}
	}

	if err := cfg.ManageSync(context.Background(), domains); err != nil {
		return err
	}

	server := &http.Server{
		Addr:      ":" + conf.Port,
		Handler:   r,
		TLSConfig: cfg.TLSConfig(),
	}

	log.Printf("Starting HTTPS server on %s\n", conf.Port)
	if err := server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func initializeRouter(b *bridgeInstance) *gin.Engine {
	return api.NewAPI(b.bridge).Router()
}

func initializeObservability(ctx context.Context, cfg *config.Configuration) (func(context.Context) error, error) {
	if !cfg.EnableTelemetry {
		return func(context.Context) error { return nil }, nil
	}

	shutdown, err := traces.SetupOTelSDK(ctx, cfg.ProjectName)
	if err != nil {
		return nil, errors.Wrap(err, "error setting up OTel SDK")
	}
	return shutdown, nil
}

// attachRelay routes broadcasts through Redis so that outcomes recorded by any
// instance, including the status worker, reach every stream subscriber.
func attachRelay(ctx context.Context, b *broadcast.Broadcaster, cfg *config.Configuration) (func(), error) {
	if !cfg.RedisEnabled() {
		return func() {}, nil
	}

	rdb, err := redis_db.NewRedisClient(cfg.Redis.Dns, cfg.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}

	if err := b.AttachRelay(ctx, broadcast.NewRedisRelay(rdb.Client(), cfg.Redis.Channel)); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	logrus.WithField("channel", cfg.Redis.Channel).Info("outcome relay attached")
	return func() { _ = rdb.Close() }, nil
}

func startServer(router *gin.Engine, cfg config.ServerConfig) error {
	if cfg.SSL {
		return serveTLS(router, cfg)
	}
	log.Printf("Starting server on http://localhost:%s", cfg.Port)
	return router.Run(":" + cfg.Port)
}

func serverCommands(b *bridgeInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start the payment bridge server",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			cfg := b.cnf
			shutdown, err := initializeObservability(ctx, cfg)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			closeRelay, err := attachRelay(ctx, b.broadcaster, cfg)
			if err != nil {
				logrus.WithError(err).Warn("redis relay unavailable, broadcasting to local subscribers only")
				closeRelay = func() {}
			}
			defer closeRelay()

			if b.queue != nil {
				defer b.queue.Client.Close()
			}

			router := initializeRouter(b)
			if err := startServer(router, cfg.Server); err != nil {
				log.Fatal(err)
			}
		},
	}

	return cmd
}
