package features

import (
	"fmt"
	"strings"
	"testing"

	"github.com/mchmarny/credscore/pkg/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlign(t *testing.T) {
	in := mustTable(t, []string{"EXTRA", "B", "TARGET", "A"}, [][]table.Value{
		{s("x"), n(2), n(1), n(1)},
		{s("y"), n(4), n(0), n(3)},
	})

	out, err := Align(in, []string{"A", "B"}, DefaultLabel)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, out.Columns())
	assert.Equal(t, 2, out.Len())
	assert.Equal(t, []table.Value{n(3), n(4)}, out.Row(1))
	assert.Equal(t, 4, in.NumColumns())
}

func TestAlign_LabelIsNeverAFeature(t *testing.T) {
	in := mustTable(t, []string{"A", "TARGET"}, [][]table.Value{{n(1), n(0)}})

	_, err := Align(in, []string{"A", "TARGET"}, DefaultLabel)
	var mc *MissingColumnsError
	require.ErrorAs(t, err, &mc)
	assert.Equal(t, []string{"TARGET"}, mc.Missing)
}

func TestAlign_MissingColumns(t *testing.T) {
	in := mustTable(t, []string{"A"}, [][]table.Value{{n(1)}})

	var cols []string
	for i := 0; i < 25; i++ {
		cols = append(cols, fmt.Sprintf("C%02d", i))
	}

	_, err := Align(in, append([]string{"A"}, cols...), DefaultLabel)
	var mc *MissingColumnsError
	require.ErrorAs(t, err, &mc)
	assert.Len(t, mc.Missing, 25)
	assert.Len(t, mc.Shown(), MaxReportedColumns)
	assert.True(t, strings.HasPrefix(err.Error(), "missing 25 required column(s): C00, C01"))
	assert.True(t, strings.HasSuffix(err.Error(), "(and 5 more)"))
}

func TestAlign_NilInput(t *testing.T) {
	_, err := Align(nil, []string{"A"}, DefaultLabel)
	assert.Error(t, err)
}
