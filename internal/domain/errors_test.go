package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFetchError(t *testing.T) {
	tests := []struct {
		name    string
		err     *FetchError
		wantMsg string
	}{
		{
			name:    "status error",
			err:     &FetchError{URL: "http://example.com", StatusCode: 404},
			wantMsg: "fetch http://example.com: unexpected status 404",
		},
		{
			name:    "transport error",
			err:     &FetchError{URL: "http://example.com", Err: errors.New("connection refused")},
			wantMsg: "fetch http://example.com: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("handler: %w", tt.err)

			assert.Equal(t, tt.wantMsg, tt.err.Error())
			assert.ErrorIs(t, wrapped, ErrFetch)
			assert.NotErrorIs(t, wrapped, ErrStoreUnavailable)

			var fetchErr *FetchError
			assert.ErrorAs(t, wrapped, &fetchErr)
			assert.Equal(t, tt.err.StatusCode, fetchErr.StatusCode)
		})
	}
}

func TestStoreError(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := &StoreError{Op: OpIncrement, Key: CounterKey("http://example.com"), Err: cause}

	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrFetch)
	assert.Contains(t, err.Error(), "increment")
	assert.Contains(t, err.Error(), "count:http://example.com")
}

func TestKeys(t *testing.T) {
	url := "http://example.com/a"

	assert.Equal(t, "cache:http://example.com/a", ContentKey(url))
	assert.Equal(t, "count:http://example.com/a", CounterKey(url))
	assert.NotEqual(t, ContentKey(url), CounterKey(url))
}
