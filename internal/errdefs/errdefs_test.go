package errdefs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type serverErr struct{ msg string }

func (e serverErr) Error() string         { return "server: " + e.msg }
func (e serverErr) ServerMessage() string { return e.msg }

func TestCustomError_IsMatchesType(t *testing.T) {
	err := NewFetchError("loading catalog", errors.New("dial tcp: refused"))

	assert.True(t, errors.Is(err, ErrFetch))
	assert.False(t, errors.Is(err, ErrInstall))
	assert.Equal(t, "loading catalog: dial tcp: refused", err.Error())

	wrapped := fmt.Errorf("reload: %w", err)
	assert.True(t, errors.Is(wrapped, ErrFetch))
}

func TestCustomError_Unwrap(t *testing.T) {
	cause := serverErr{msg: "Destination folder already exists."}
	err := NewInstallError("install hello-dolly", cause)

	var se serverErr
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, cause, se)
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		fallback string
		want     string
	}{
		{"nil error", nil, "Installation failed.", "Installation failed."},
		{"plain error", errors.New("boom"), "Installation failed.", "Installation failed."},
		{"server message", NewInstallError("x", serverErr{msg: "Folder exists"}), "Installation failed.", "Folder exists"},
		{"empty server message", NewActivateError("x", serverErr{}), "Activation failed.", "Activation failed."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err, tt.fallback))
		})
	}
}

func TestErrorType_String(t *testing.T) {
	assert.Equal(t, "busy", ErrTypeBusy.String())
	assert.Equal(t, "generic", ErrorType(99).String())
}
