package features

import (
	"testing"

	"github.com/mchmarny/credscore/pkg/table"
	"github.com/stretchr/testify/require"
)

func mustTable(t *testing.T, cols []string, rows [][]table.Value) *table.Table {
	t.Helper()
	tbl, err := table.New(cols)
	require.NoError(t, err)
	for _, r := range rows {
		require.NoError(t, tbl.Append(r))
	}
	return tbl
}

func n(f float64) table.Value { return table.Number(f) }

func s(v string) table.Value { return table.String(v) }

func na() table.Value { return table.Missing() }

// reference returns a small training-like table with every override column.
func reference(t *testing.T) *table.Table {
	t.Helper()
	cols := []string{
		"SK_ID_CURR", "TARGET", "NAME_CONTRACT_TYPE",
		"AMT_INCOME_TOTAL", "AMT_CREDIT", "AMT_ANNUITY", "CNT_FAM_MEMBERS",
		"DAYS_BIRTH", "DAYS_EMPLOYED", "AGE",
		"AMT_INCOME_TOTAL_LOG", "AMT_CREDIT_LOG", "AMT_ANNUITY_LOG",
		"DEBT_INCOME_RATIO", "CREDIT_ANNUITY_RATIO", "INCOME_PER_PERSON", "PAYMENT_RATE",
		"EXT_SOURCE_2",
	}
	return mustTable(t, cols, [][]table.Value{
		{n(1), n(0), s("Cash loans"), n(100000), n(400000), n(20000), n(2), n(12000), n(1000), n(33), n(11.5), n(12.9), n(9.9), n(4), n(19), n(33333), n(0.05), n(0.6)},
		{n(2), n(1), s("Revolving loans"), n(200000), n(600000), n(30000), n(3), n(14000), n(2000), n(38), n(12.2), n(13.3), n(10.3), n(3), n(20), n(50000), n(0.05), na()},
		{n(3), n(0), s("Cash loans"), n(150000), n(500000), n(25000), n(1), n(16000), na(), n(44), n(11.9), n(13.1), n(10.1), n(3.3), n(20), n(75000), n(0.05), n(0.4)},
	})
}
