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

package model

import "errors"

// Failure taxonomy shared by every component. Components wrap these with
// context; callers match them with errors.Is.
var (
	ErrInvalidPhoneFormat   = errors.New("invalid phone number format")
	ErrInvalidAmount        = errors.New("amount must be greater than zero")
	ErrAuthenticationFailed = errors.New("gateway authentication failed")
	ErrGatewayRequestFailed = errors.New("gateway request failed")
	ErrGatewayUnavailable   = errors.New("gateway unavailable")
	ErrMalformedCallback    = errors.New("malformed callback")
	ErrStoreWriteFailed     = errors.New("failed to store transaction outcome")
)
