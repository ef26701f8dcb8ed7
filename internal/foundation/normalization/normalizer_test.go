package normalization

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func levels() *Normalizer[slog.Level] {
	return NewEnumNormalizer("log level", map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}, slog.LevelInfo)
}

func TestNormalize_TrimsAndFoldsCase(t *testing.T) {
	n := levels()
	require.Equal(t, slog.LevelDebug, n.Normalize("  DEBUG "))
	require.Equal(t, slog.LevelWarn, n.Normalize("Warning"))
	require.Equal(t, slog.LevelInfo, n.Normalize("loud"))
}

func TestNormalizeWithValidation(t *testing.T) {
	n := levels()

	v, err := n.NormalizeWithValidation("error")
	require.NoError(t, err)
	require.Equal(t, slog.LevelError, v)

	_, err = n.NormalizeWithValidation("loud")
	require.Error(t, err)
	require.Contains(t, err.Error(), `invalid log level "loud"`)
	require.Contains(t, err.Error(), "[debug error info warn warning]")
}

func TestValidValues_ReturnsCopy(t *testing.T) {
	n := levels()
	keys := n.ValidValues()
	keys[0] = "mutated"
	require.Equal(t, "debug", n.ValidValues()[0])
}
