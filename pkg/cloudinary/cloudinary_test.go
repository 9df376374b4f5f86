package cloudinary

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestPublicIDStripsExtensionAndSymbols(t *testing.T) {
	id, err := PublicID("20391.png")
	require.NoError(t, err)
	require.Equal(t, "20391", id)

	id, err = PublicID("uploads/A 17/b.jpeg")
	require.NoError(t, err)
	require.Equal(t, "b", id)

	id, err = PublicID("ST 0042!.webp")
	require.NoError(t, err)
	require.Equal(t, "ST-0042", id)

	_, err = PublicID("...")
	require.Error(t, err)
}

func TestNewRequiresCredentials(t *testing.T) {
	cfg := Config{CloudName: "campus", APIKey: "key"}
	require.False(t, cfg.Enabled())

	_, err := New(cfg, zerolog.Nop())
	require.Error(t, err)

	cfg.APISecret = "secret"
	require.True(t, cfg.Enabled())
	storage, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, storage)
}
