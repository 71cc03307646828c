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

package phone

import (
	"errors"
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/stkpush/model"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "country code", input: "254712345678", want: "254712345678"},
		{name: "country code with plus", input: "+254 712 345 678", want: "254712345678"},
		{name: "trunk prefix", input: "0712345678", want: "254712345678"},
		{name: "trunk prefix with dashes", input: "0712-345-678", want: "254712345678"},
		{name: "subscriber number only", input: "712345678", want: "254712345678"},
		{name: "newer 01 range", input: "0110345678", want: "254110345678"},
		{name: "zeros inside number are kept", input: "0700000000", want: "254700000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_Invalid(t *testing.T) {
	inputs := []string{"", "abc", "0", "+1 555 0100", "812345678", "999"}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			got, err := Normalize(input)
			assert.Empty(t, got)
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrInvalidPhoneFormat))

			var formatErr *InvalidFormatError
			require.True(t, errors.As(err, &formatErr))
			assert.Equal(t, input, formatErr.Input)
		})
	}
}

func TestNormalize_CountryCodeUnchanged(t *testing.T) {
	for i := 0; i < 50; i++ {
		number := CountryCode + gofakeit.Numerify("#########")
		got, err := Normalize(number)
		require.NoError(t, err)
		assert.Equal(t, number, got)
	}
}

func TestNormalize_TrunkPrefixPreservesSubscriberLength(t *testing.T) {
	for i := 0; i < 50; i++ {
		subscriber := "7" + gofakeit.Numerify("########")
		got, err := Normalize(trunkPrefix + subscriber)
		require.NoError(t, err)
		assert.Equal(t, CountryCode+subscriber, got)
		assert.Len(t, strings.TrimPrefix(got, CountryCode), len(subscriber))
	}
}
