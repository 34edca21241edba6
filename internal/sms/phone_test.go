//go:build unit

package sms_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eruvnet/eruv-alerts-api/internal/sms"
)

func TestNormalizePhone(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		expected string
	}{
		{name: "bare ten digits", raw: "2015551234", expected: "+12015551234"},
		{name: "dashes", raw: "201-555-1234", expected: "+12015551234"},
		{name: "parentheses and spaces", raw: "(201) 555 1234", expected: "+12015551234"},
		{name: "dots", raw: "201.555.1234", expected: "+12015551234"},
		{name: "underscores", raw: "201_555_1234", expected: "+12015551234"},
		{name: "leading country code", raw: "12015551234", expected: "+12015551234"},
		{name: "already normalized", raw: "+12015551234", expected: "+12015551234"},
		{name: "surrounding whitespace", raw: "  201-555-1234 ", expected: "+12015551234"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, sms.NormalizePhone(tc.raw))
		})
	}
}
