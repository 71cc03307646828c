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
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const keepAliveComment = ": keep-alive\n\n"

// StreamTransactions relays every recorded outcome to the client as an "outcome"
// server-sent event until the client disconnects.
func (a Api) StreamTransactions(c *gin.Context) {
	sub := a.bridge.Broadcaster().Subscribe()
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		ev, err := sub.Next(ctx)
		if err != nil {
			return false
		}
		if ev.KeepAlive {
			if _, err := io.WriteString(w, keepAliveComment); err != nil {
				logrus.WithError(err).Debug("stream client went away")
				return false
			}
			return true
		}
		c.SSEvent("outcome", ev.Outcome)
		return true
	})
}
