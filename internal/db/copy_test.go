package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "anomalies", []string{"kind", "severity"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"anomalies"}, []string{"kind", "severity"}).WillReturnResult(3)

	rows := [][]any{
		{"type_mismatch", "warning"},
		{"out_of_range", "blocking"},
		{"duplicate_key", "warning"},
	}
	n, err := CopyFrom(context.Background(), mock, "anomalies", []string{"kind", "severity"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"anomalies"}, []string{"kind"}).WillReturnError(fmt.Errorf("copy failed"))

	rows := [][]any{{"type_mismatch"}}
	_, err = CopyFrom(context.Background(), mock, "anomalies", []string{"kind"}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO anomalies")
	assert.NoError(t, mock.ExpectationsWereMet())
}
