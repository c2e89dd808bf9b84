package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	t.Parallel()

	n, err := CopyFrom(context.Background(), nil, "field_provenance", []string{"id"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCopyFrom_Success(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"field_provenance"}, []string{"id", "field_name"}).
		WillReturnResult(2)

	n, err := CopyFrom(context.Background(), mock, "field_provenance", []string{"id", "field_name"},
		[][]any{{"p1", "code"}, {"p2", "name"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"field_provenance"}, []string{"id"}).
		WillReturnError(errors.New("copy failed"))

	_, err = CopyFrom(context.Background(), mock, "field_provenance", []string{"id"}, [][]any{{"p1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy into field_provenance")
}
