package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestIsWriteConflict(t *testing.T) {
	require.True(t, IsWriteConflict(&pgconn.PgError{Code: "40001"}))
	require.True(t, IsWriteConflict(&pgconn.PgError{Code: "40P01"}))
	require.False(t, IsWriteConflict(&pgconn.PgError{Code: "23505"}))
	require.False(t, IsWriteConflict(errors.New("plain error")))
	require.False(t, IsWriteConflict(nil))
}

func TestInTransactionMarker(t *testing.T) {
	ctx := context.Background()
	require.False(t, InTransaction(ctx))
	ctx = context.WithValue(ctx, txMarkerKey{}, true)
	require.True(t, InTransaction(ctx))
}
