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

	"github.com/blnkfinance/stkpush/api/model"
)

func (a Api) InitiatePayment(c *gin.Context) {
	var newPayment model.InitiatePayment
	if err := c.ShouldBindJSON(&newPayment); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := newPayment.ValidateInitiatePayment(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	checkoutID, err := a.bridge.InitiatePayment(c.Request.Context(), newPayment.ToPaymentRequest(c.ClientIP()))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"checkout_request_id": checkoutID})
}

func (a Api) GetPaymentStatus(c *gin.Context) {
	id, passed := c.Params.Get("checkout_request_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "checkout_request_id is required. pass it in the route /payments/:checkout_request_id/status"})
		return
	}

	result, err := a.bridge.QueryStatus(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
