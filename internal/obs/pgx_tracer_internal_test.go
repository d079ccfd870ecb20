package obs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDescribeSQL(t *testing.T) {
	op, table := describeSQL("UPDATE sejolisa_orders SET status = $1 WHERE id = $2")
	require.Equal(t, "UPDATE", op)
	require.Equal(t, "sejolisa_orders", table)

	op, table = describeSQL("insert into sejolisa_chip_in_transaction (order_id) values ($1)")
	require.Equal(t, "INSERT", op)
	require.Equal(t, "sejolisa_chip_in_transaction", table)

	op, table = describeSQL("  ")
	require.Empty(t, op)
	require.Empty(t, table)
}

func TestTruncateSQL(t *testing.T) {
	long := strings.Repeat("x", maxStatementLen+10)
	require.Len(t, truncateSQL(long), maxStatementLen+3)
	require.Equal(t, "SELECT 1", truncateSQL(" SELECT 1 "))
}
