package cmd

import (
	"context"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveServerURLPrefersExplicit(t *testing.T) {
	viper.Set("server_url", " http://watch.internal:9000 ")
	t.Cleanup(func() { viper.Set("server_url", "") })

	got, err := resolveServerURL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://watch.internal:9000", got)

	api, err := newAPIClient(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://watch.internal:9000", api.BaseURL())
}
