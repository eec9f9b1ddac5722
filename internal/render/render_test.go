package render

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatTable, "JSON": FormatJSON, "yml": FormatYAML, "table": FormatTable} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("xml")
	require.Error(t, err)
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Table(&buf, []string{"ID", "TITLE"}, [][]string{{"p1", "Novel"}, {"p22", "Short"}}))
	assert.Equal(t, "ID   TITLE\n---  -----\np1   Novel\np22  Short\n", buf.String())

	buf.Reset()
	require.NoError(t, Table(&buf, []string{"ID"}, nil))
	assert.Empty(t, buf.String())
}

func TestRender_Formats(t *testing.T) {
	data := []item{{ID: "p1", Title: "Novel"}}
	table := func(w io.Writer) error {
		_, err := io.WriteString(w, "table\n")
		return err
	}

	var buf bytes.Buffer
	require.NoError(t, NewRenderer(&buf, FormatJSON).Render(data, table))
	assert.JSONEq(t, `[{"id":"p1","title":"Novel"}]`, buf.String())

	buf.Reset()
	require.NoError(t, NewRenderer(&buf, FormatYAML).Render(data, table))
	assert.Equal(t, "- id: p1\n  title: Novel\n", buf.String())

	buf.Reset()
	r := NewRenderer(&buf, "")
	assert.False(t, r.Structured())
	require.NoError(t, r.Render(data, table))
	assert.Equal(t, "table\n", buf.String())
}
