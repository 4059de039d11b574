package main

import (
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praneth2580/storix/internal/store"
)

func commandWithData(t *testing.T, data string) *cobra.Command {
	t.Helper()

	cmd := &cobra.Command{}
	cmd.Flags().String("data", "", "")

	if data != "" {
		require.NoError(t, cmd.Flags().Set("data", data))
	}

	return cmd
}

func TestParseValue(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Widget", parseValue("Widget"))
	assert.Equal(t, json.Number("9.99"), parseValue("9.99"))
	assert.Equal(t, true, parseValue("true"))
	assert.Nil(t, parseValue("null"))
	assert.Equal(t, "", parseValue(""))
	assert.Equal(t, "1 2", parseValue("1 2"))
	assert.Equal(t, map[string]any{"size": "L"}, parseValue(`{"size":"L"}`))
}

func TestParseFields_MergesDataAndArgs(t *testing.T) {
	t.Parallel()

	cmd := commandWithData(t, `{"name":"from data","qty":3}`)

	fields, err := parseFields(cmd, []string{"name=from args", "sku=A-1"})
	require.NoError(t, err)
	assert.Equal(t, store.Record{
		"name": "from args",
		"qty":  json.Number("3"),
		"sku":  "A-1",
	}, fields)
}

func TestParseFields_Errors(t *testing.T) {
	t.Parallel()

	_, err := parseFields(commandWithData(t, ""), []string{"novalue"})
	require.ErrorIs(t, err, errBadField)

	_, err = parseFields(commandWithData(t, ""), []string{"=x"})
	require.ErrorIs(t, err, errBadField)

	_, err = parseFields(commandWithData(t, "[1]"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--data")
}

func TestParseFields_ValueMayContainEquals(t *testing.T) {
	t.Parallel()

	fields, err := parseFields(commandWithData(t, ""), []string{"note=a=b"})
	require.NoError(t, err)
	assert.Equal(t, "a=b", fields["note"])
}
