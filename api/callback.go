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
)

type callbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// MpesaCallback accepts the gateway's result webhook. The gateway only looks at the
// status code, so any failure is a 500 with the reason in ResultDesc.
func (a Api) MpesaCallback(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, callbackAck{ResultCode: 1, ResultDesc: err.Error()})
		return
	}

	if _, err := a.bridge.HandleCallback(c.Request.Context(), body); err != nil {
		c.JSON(http.StatusInternalServerError, callbackAck{ResultCode: 1, ResultDesc: err.Error()})
		return
	}

	c.JSON(http.StatusOK, callbackAck{ResultCode: 0, ResultDesc: "Callback processed successfully"})
}
