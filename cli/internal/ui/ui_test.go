package ui

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	prev, prevColor := Out, color.NoColor
	Out, color.NoColor = buf, true
	t.Cleanup(func() { Out, color.NoColor = prev, prevColor })
	return buf
}

func TestPrintSQL(t *testing.T) {
	buf := capture(t)
	require.NoError(t, PrintSQL("SELECT * FROM users WHERE age > ?", []any{18, "x"}))
	assert.Equal(t, "SELECT * FROM users WHERE age > ?\n[18,\"x\"]\n", buf.String())
}

func TestPrintList(t *testing.T) {
	buf := capture(t)
	PrintList([]string{"a", "b"})
	assert.Equal(t, "  • a\n  • b\n", buf.String())
}

func TestCell(t *testing.T) {
	assert.Equal(t, "abc", Cell([]byte("abc")))
	assert.Equal(t, "42", Cell(int64(42)))
	assert.Equal(t, "x", Cell("x"))
	assert.Contains(t, Cell(nil), "NULL")
}

func TestPrintTable(t *testing.T) {
	buf := capture(t)
	require.NoError(t, PrintTable([]string{"id", "name"}, [][]string{{"1", "ann"}}))
	assert.Contains(t, buf.String(), "ann")
}
