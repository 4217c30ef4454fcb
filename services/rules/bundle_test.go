package rules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBundle = `
rules:
  - action: cancel_order
    condition: The order was placed less than 24 hours ago.
    deny_message: Orders can only be cancelled within a day.
    escalate_after_retries: 3
  - action: cancel_order
    condition: The product type is not "limited".
`

func TestDecodeBundle(t *testing.T) {
	bundle, err := DecodeBundle(strings.NewReader(sampleBundle))
	require.NoError(t, err)
	require.Len(t, bundle.Rules, 2)

	first := bundle.Rules[0]
	assert.Equal(t, "cancel_order", first.ActionName)
	assert.Equal(t, "The order was placed less than 24 hours ago.", first.Condition)
	assert.Equal(t, "Orders can only be cancelled within a day.", first.DenyMessage)
	require.NotNil(t, first.EscalateAfterRetries)
	assert.Equal(t, 3, *first.EscalateAfterRetries)

	assert.Nil(t, bundle.Rules[1].EscalateAfterRetries)
	assert.Empty(t, bundle.Rules[1].DenyMessage)
}

func TestDecodeBundle_UnknownField(t *testing.T) {
	_, err := DecodeBundle(strings.NewReader("rules:\n  - action: x\n    threshold: 2\n"))
	assert.Error(t, err)
}

func TestDecodeBundle_Empty(t *testing.T) {
	bundle, err := DecodeBundle(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, bundle.Rules)
}

func TestLoadBundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleBundle), 0o600))

	bundle, err := LoadBundle(path)
	require.NoError(t, err)
	assert.Len(t, bundle.Rules, 2)

	_, err = LoadBundle(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
