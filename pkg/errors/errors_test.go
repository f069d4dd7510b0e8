package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		typ  ErrorType
		msg  string
	}{
		{"configuration", Configuration("APIFY_API_TOKEN environment variable is not set"), ErrorTypeConfiguration, "APIFY_API_TOKEN environment variable is not set"},
		{"provider start", ProviderStart("Failed to start Apify actor"), ErrorTypeProviderStart, "Failed to start Apify actor"},
		{"provider run", ProviderRun("ABORTED"), ErrorTypeProviderRun, "Apify actor run failed with status: ABORTED"},
		{"empty result", EmptyResult(), ErrorTypeEmptyResult, "No data returned from Apify"},
		{"lease held", LeaseHeld("natgeo"), ErrorTypeLeaseHeld, "account natgeo is already being scraped by another invocation"},
		{"timeout", Timeout("run-1", nil), ErrorTypeTimeout, "timed out waiting for Apify run run-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.typ, tt.err.Type)
			assert.Equal(t, tt.msg, tt.err.Error())
		})
	}
}

func TestProviderRunKeepsStatus(t *testing.T) {
	assert.Equal(t, "TIMED-OUT", ProviderRun("TIMED-OUT").Status)
}

func TestWrap(t *testing.T) {
	cause := errors.New("connection refused")

	err := Wrap(ErrorTypeNetwork, "request failed", cause)
	assert.Equal(t, "request failed: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)

	assert.Equal(t, "connection refused", Wrap(ErrorTypeNetwork, "", cause).Error())
	assert.Nil(t, Wrap(ErrorTypeNetwork, "x", nil))
}

func TestStore(t *testing.T) {
	err := Store("create scraping log", errors.New("constraint violation"))
	assert.Equal(t, ErrorTypeStore, err.Type)
	assert.Equal(t, "create scraping log: constraint violation", err.Error())
}

func TestTypeOfThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("account alice: %w", EmptyResult())

	assert.Equal(t, ErrorTypeEmptyResult, TypeOf(wrapped))
	assert.True(t, Is(wrapped, ErrorTypeEmptyResult))
	assert.False(t, Is(wrapped, ErrorTypeStore))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(errors.New("plain")))
	assert.False(t, Is(nil, ErrorTypeUnknown))
}
