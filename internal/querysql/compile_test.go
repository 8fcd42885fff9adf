package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracemon/internal/ir"
	"github.com/roach88/tracemon/internal/queryir"
)

var schema = queryir.Schema{
	"violations": {"id", "monitor_id", "trace", "step", "status"},
}

func TestCompile_NoFilter(t *testing.T) {
	sql, params, err := NewSQLCompiler(schema).Compile(queryir.Select{
		From:    "violations",
		Columns: []string{"id", "step"},
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, step FROM violations ORDER BY id COLLATE BINARY ASC", sql)
	assert.Empty(t, params)
}

func TestCompile_FilterAndOrder(t *testing.T) {
	sql, params, err := NewSQLCompiler(schema).Compile(queryir.Select{
		From:    "violations",
		Columns: []string{"id"},
		Filter: queryir.And{Predicates: []queryir.Predicate{
			queryir.Equals{Field: "monitor_id", Value: ir.Str("no-admin'; DROP TABLE violations; --")},
			queryir.And{Predicates: []queryir.Predicate{
				queryir.Equals{Field: "step", Value: ir.Int(3)},
				queryir.Equals{Field: "status", Value: ir.Str("UNREAD")},
			}},
		}},
		OrderBy: []queryir.Order{{Field: "monitor_id"}, {Field: "step", Desc: true}},
	})
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT id FROM violations WHERE monitor_id = ? AND (step = ? AND status = ?) "+
			"ORDER BY monitor_id COLLATE BINARY ASC, step COLLATE BINARY DESC, id COLLATE BINARY ASC",
		sql)
	assert.Equal(t, []any{"no-admin'; DROP TABLE violations; --", int64(3), "UNREAD"}, params)
}

func TestCompile_ExplicitTiebreaker(t *testing.T) {
	sql, _, err := NewSQLCompiler(schema).Compile(queryir.Select{
		From:    "violations",
		Columns: []string{"id"},
		Filter:  queryir.And{},
		OrderBy: []queryir.Order{{Field: "id", Desc: true}},
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM violations WHERE 1 = 1 ORDER BY id COLLATE BINARY DESC", sql)
}

func TestCompile_Invalid(t *testing.T) {
	_, _, err := NewSQLCompiler(schema).Compile(queryir.Select{
		From:    "violations",
		Columns: []string{"id; DROP TABLE violations"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown column")

	_, _, err = NewSQLCompiler(schema).Compile(queryir.Select{
		From:    "violations",
		Columns: []string{"id"},
		Filter:  queryir.Equals{Field: "step"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported value")
}
