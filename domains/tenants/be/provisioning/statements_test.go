package provisioning

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	sql := `
-- members table
CREATE TABLE members (
    id bigserial PRIMARY KEY,
    full_name varchar(255) NOT NULL
);

CREATE INDEX members_full_name_idx ON members (full_name);
`
	stmts := splitStatements(sql)
	require.Len(t, stmts, 2)
	require.Contains(t, stmts[0], "CREATE TABLE members")
	require.NotContains(t, stmts[0], "--")
	require.Contains(t, stmts[1], "CREATE INDEX")
}

func TestSplitStatementsEmptyInput(t *testing.T) {
	require.Empty(t, splitStatements(""))
	require.Empty(t, splitStatements("-- nothing but comments\n-- here\n"))
	require.Empty(t, splitStatements(" ; ;\n;"))
}
