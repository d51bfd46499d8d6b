package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleTable() Table {
	return Table{
		Columns: []string{"Seq", "Action", "Actor"},
		Rows: [][]string{
			{"1", "SCHEDULE_PROPOSE", "0xadmin"},
			{"2", "SCHEDULE_VALIDATE", "0xadmin"},
		},
	}
}

func TestRenderCSV(t *testing.T) {
	payload, err := RenderCSV(sampleTable())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "Seq,Action,Actor", lines[0])
	require.Contains(t, lines[1], "SCHEDULE_PROPOSE")
}

func TestRenderCSVQuoting(t *testing.T) {
	table := Table{
		Columns: []string{"Detail"},
		Rows:    [][]string{{`contains "quotes", commas`}},
	}
	payload, err := RenderCSV(table)
	require.NoError(t, err)
	require.Contains(t, string(payload), `"contains ""quotes"", commas"`)
}

func TestRenderCSVRejectsRaggedRows(t *testing.T) {
	table := sampleTable()
	table.Rows = append(table.Rows, []string{"3"})

	_, err := RenderCSV(table)
	require.Error(t, err)
}

func TestRenderCSVRequiresColumns(t *testing.T) {
	_, err := RenderCSV(Table{})
	require.Error(t, err)
}

func TestRenderPDF(t *testing.T) {
	payload, err := RenderPDF(sampleTable(), "Ledger Audit")
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(payload, []byte("%PDF")))
}

func TestRenderPDFPaginatesLongTables(t *testing.T) {
	table := Table{Columns: []string{"Seq", "Action"}}
	for i := 0; i < 200; i++ {
		table.Rows = append(table.Rows, []string{"1", "ENROLL"})
	}
	payload, err := RenderPDF(table, "")
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(payload, []byte("%PDF")))
	// Multiple page objects indicate pagination kicked in.
	require.Greater(t, bytes.Count(payload, []byte("/Page")), 1)
}

func TestRenderPDFRequiresColumns(t *testing.T) {
	_, err := RenderPDF(Table{}, "x")
	require.Error(t, err)
}
