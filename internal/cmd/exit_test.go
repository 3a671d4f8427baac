package cmd

import (
	"fmt"
	"io/fs"
	"net/http"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"

	"github.com/ratewatch/ratewatch/internal/client"
	errwrap "github.com/ratewatch/ratewatch/internal/errors"
)

func TestExitCodeFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want foundry.ExitCode
	}{
		{"config envelope", errwrap.NewConfigInvalidError("bad"), foundry.ExitConfigInvalid},
		{"wrapped envelope", fmt.Errorf("load: %w", errwrap.NewConfigInvalidError("bad")), foundry.ExitConfigInvalid},
		{"unavailable envelope", errwrap.NewServiceUnavailableError("down"), foundry.ExitExternalServiceUnavailable},
		{"server 503", &client.APIError{StatusCode: http.StatusServiceUnavailable}, foundry.ExitExternalServiceUnavailable},
		{"server 404", &client.APIError{StatusCode: http.StatusNotFound}, foundry.ExitFailure},
		{"missing file", fmt.Errorf("open: %w", fs.ErrNotExist), foundry.ExitFileNotFound},
		{"other", fmt.Errorf("boom"), foundry.ExitFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExitCodeFor(tc.err))
		})
	}
}
