package settlement_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickysdata/dataplug/internal/settlement"
)

func parse(t *testing.T, input string) []settlement.Row {
	t.Helper()

	rows, err := settlement.Parse(strings.NewReader(input))
	require.NoError(t, err)

	return rows
}

func TestParse_CommaSeparated(t *testing.T) {
	input := "reference,amount,status,date\n" +
		"R1,23.00,settled,2026-08-30\n" +
		"R2,5.50,failed,2026-08-30\n"

	rows := parse(t, input)
	require.Len(t, rows, 2)

	assert.Equal(t, "R1", rows[0].Reference)
	assert.Equal(t, int64(2300), rows[0].Amount)
	assert.Equal(t, "settled", rows[0].Status)
	assert.Equal(t, time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), rows[0].SettledAt)

	assert.Equal(t, int64(550), rows[1].Amount)
	assert.Equal(t, "failed", rows[1].Status)
}

func TestParse_SemicolonWithGatewayAliases(t *testing.T) {
	input := "ExternalRef;TransactionID;Amount;TxStatus\n" +
		"R1;G1;23.00;1\n"

	rows := parse(t, input)
	require.Len(t, rows, 1)

	assert.Equal(t, "R1", rows[0].Reference)
	assert.Equal(t, "G1", rows[0].GatewayReference)
	assert.Equal(t, int64(2300), rows[0].Amount)
	assert.Equal(t, "1", rows[0].Status)
}

func TestParse_SkipsBlankReferenceRows(t *testing.T) {
	input := "reference,amount\nR1,10\n,99\n"

	rows := parse(t, input)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1000), rows[0].Amount)
}

func TestParse_MissingReferenceColumn(t *testing.T) {
	_, err := settlement.Parse(strings.NewReader("amount,status\n10,settled\n"))
	assert.ErrorContains(t, err, "no reference column")
}

func TestParse_BadAmount(t *testing.T) {
	_, err := settlement.Parse(strings.NewReader("reference,amount\nR1,abc\n"))
	assert.ErrorContains(t, err, "row 2")
}
