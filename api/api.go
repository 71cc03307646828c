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

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/blnkfinance/stkpush"
	"github.com/blnkfinance/stkpush/api/middleware"
	"github.com/blnkfinance/stkpush/config"
)

type Api struct {
	bridge *stkpush.Bridge
	router *gin.Engine
}

// Router registers the bridge endpoints. The gateway callback is always public; the
// client-facing routes sit behind the secret key when the server runs in secure mode.
func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/mpesa/callback", a.MpesaCallback)

	client := router.Group("/")
	if conf, err := config.Fetch(); err == nil && conf.Server.Secure {
		client.Use(middleware.SecretKeyAuthMiddleware())
	}

	client.POST("/payments", a.InitiatePayment)
	client.GET("/payments/:checkout_request_id/status", a.GetPaymentStatus)

	client.GET("/transactions/stream", a.StreamTransactions)
	client.GET("/transactions", a.ListTransactions)
	client.GET("/transactions/:checkout_request_id", a.GetTransaction)
	return a.router
}

func NewAPI(b *stkpush.Bridge) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(otelgin.Middleware(conf.ProjectName))
	r.Use(middleware.RateLimitMiddleware(conf))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})

	return &Api{bridge: b, router: r}
}
