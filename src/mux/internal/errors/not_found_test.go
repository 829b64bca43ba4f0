package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootNotFound(t *testing.T) {
	err := &RootNotFoundError{Root: "file:///home/user/project/"}
	msg := `no session for root "file:///home/user/project/"`
	assert.Equal(t, msg, err.Error())
}

func TestIsRootNotFound(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantOK   bool
		wantRoot string
	}{
		{
			name:     "root not found",
			err:      &RootNotFoundError{Root: "file:///a/b/"},
			wantOK:   true,
			wantRoot: "file:///a/b/",
		},
		{
			name:     "wrapped root not found",
			err:      fmt.Errorf("stopping session: %w", &RootNotFoundError{Root: "file:///a/b/"}),
			wantOK:   true,
			wantRoot: "file:///a/b/",
		},
		{
			name:     "random error",
			err:      New("err"),
			wantOK:   false,
			wantRoot: "",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			root, ok := NotFoundRoot(tt.err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantRoot, root)
		})
	}
}
