package handler

import (
	"io"
	"log/slog"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()

	id, err := uuid.FromString(s)
	require.NoError(t, err)

	return id
}
