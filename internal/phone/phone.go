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

// Package phone canonicalizes customer phone numbers into the 2547XXXXXXXX form the
// gateway expects.
package phone

import (
	"fmt"
	"strings"

	"github.com/blnkfinance/stkpush/model"
)

const (
	CountryCode = "254"
	trunkPrefix = "0"
	// subscriberLead is the leading digit of a mobile subscriber number.
	subscriberLead = "7"
)

// InvalidFormatError is returned when an input cannot be mapped to a gateway number.
type InvalidFormatError struct {
	Input string
}

func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("%s: %q", model.ErrInvalidPhoneFormat, e.Input)
}

func (e *InvalidFormatError) Is(target error) bool {
	return target == model.ErrInvalidPhoneFormat
}

// Normalize strips every non-digit from input and rewrites it to the country-code form.
// Only a single leading trunk prefix is removed; zeros elsewhere in the number are kept.
func Normalize(input string) (string, error) {
	digits := digitsOnly(input)

	switch {
	case strings.HasPrefix(digits, CountryCode):
		return digits, nil
	case strings.HasPrefix(digits, trunkPrefix) && len(digits) > len(trunkPrefix):
		return CountryCode + strings.TrimPrefix(digits, trunkPrefix), nil
	case strings.HasPrefix(digits, subscriberLead):
		return CountryCode + digits, nil
	}

	return "", &InvalidFormatError{Input: input}
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
