package test_test

import (
	"testing"

	j1939 "github.com/mkalda/go-j1939-client"
	"github.com/stretchr/testify/assert"
)

// AssertMessage compares decoded messages. Float signals are compared with
// given delta, everything else must match exactly.
func AssertMessage(t *testing.T, expect j1939.Message, actual j1939.Message, delta float64) {
	assert.Equal(t, expect.Header, actual.Header)
	assert.Equal(t, expect.PGNName, actual.PGNName)
	assert.Equal(t, expect.Raw, actual.Raw)
	assert.Equal(t, expect.DroppedSignals, actual.DroppedSignals)
	AssertSignals(t, expect.Signals, actual.Signals, delta)
}

// AssertSignals compares signal sequences by name.
func AssertSignals(t *testing.T, expect j1939.Signals, actual j1939.Signals, delta float64) {
	assert.Len(t, actual, len(expect))

	for _, actualSignal := range actual {
		expectedSignal, ok := expect.FindByName(actualSignal.Name)
		if !ok {
			t.Errorf("actual signals contain signal with name `%v` that is not in expected signals", actualSignal.Name)
			continue
		}
		AssertSignal(t, expectedSignal, actualSignal, delta)
	}
}

// AssertSignal compares single signal value.
func AssertSignal(t *testing.T, expect j1939.Signal, actual j1939.Signal, delta float64) {
	assert.Equal(t, expect.Name, actual.Name)
	assert.Equal(t, expect.Type, actual.Type)

	if expectValue, ok := expect.Float(); ok {
		actualValue, ok := actual.Float()
		if assert.True(t, ok) {
			assert.InDelta(
				t,
				expectValue,
				actualValue,
				delta,
				"Signal name: `%v` value %v is different from expected %v",
				expect.Name,
				actualValue,
				expectValue,
			)
		}
		return
	}
	assert.Equal(t, expect, actual)
}
