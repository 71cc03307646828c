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

package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/stkpush/model"
)

type ErrorCode string

const (
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrBadRequest         ErrorCode = "BAD_REQUEST"
	ErrInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrForbidden          ErrorCode = "FORBIDDEN"
	ErrGatewayFailed      ErrorCode = "GATEWAY_ERROR"
	ErrGatewayUnavailable ErrorCode = "GATEWAY_UNAVAILABLE"
	ErrInternalServer     ErrorCode = "INTERNAL_SERVER_ERROR"
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	logrus.WithField("code", code).Error(details)
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// FromError classifies a bridge error into an APIError. Validation failures become
// INVALID_INPUT, gateway failures GATEWAY_ERROR or GATEWAY_UNAVAILABLE.
func FromError(err error) APIError {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, model.ErrInvalidPhoneFormat), errors.Is(err, model.ErrInvalidAmount):
		return NewAPIError(ErrInvalidInput, err.Error(), err.Error())
	case errors.Is(err, model.ErrGatewayUnavailable):
		return NewAPIError(ErrGatewayUnavailable, "payment gateway is unavailable", err.Error())
	case errors.Is(err, model.ErrAuthenticationFailed), errors.Is(err, model.ErrGatewayRequestFailed):
		return NewAPIError(ErrGatewayFailed, "payment gateway request failed", err.Error())
	case errors.Is(err, model.ErrMalformedCallback):
		return NewAPIError(ErrBadRequest, err.Error(), err.Error())
	default:
		return NewAPIError(ErrInternalServer, "internal server error", err.Error())
	}
}

func MapErrorToHTTPStatus(err error) int {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case ErrNotFound:
			return http.StatusNotFound
		case ErrInvalidInput, ErrBadRequest:
			return http.StatusBadRequest
		case ErrUnauthorized:
			return http.StatusUnauthorized
		case ErrForbidden:
			return http.StatusForbidden
		case ErrGatewayFailed:
			return http.StatusBadGateway
		case ErrGatewayUnavailable:
			return http.StatusServiceUnavailable
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
