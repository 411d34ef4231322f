package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRoster(t *testing.T) {
	in := "first_name,last_name,grade\nAda, Lovelace ,3\n\"O'Neil, Jr\",Brown\n"

	got, err := readRoster(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Lovelace", got[0].LastName)
	assert.Equal(t, "3", got[0].Grade)
	assert.Equal(t, "O'Neil, Jr", got[1].FirstName)
	assert.Empty(t, got[1].Grade)
}

func TestReadRoster_RejectsMissingName(t *testing.T) {
	_, err := readRoster(strings.NewReader("Ada,\n"))
	assert.ErrorContains(t, err, "line 1")
}
