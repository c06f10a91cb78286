// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"bytes"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCommand_Properties(t *testing.T) {
	cmd := NewStatusCmd()

	assert.Equal(t, "status", cmd.Use)
	assert.Contains(t, cmd.Short, "schema", "Short description should mention schema")
}

func TestStatusCommand_Help(t *testing.T) {
	cmd := NewRootCmd()
	cmd.SetArgs([]string{"status", "--help"})

	buf := new(bytes.Buffer)
	cmd.SetOut(buf)

	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "connectivity", "Help missing connectivity description")
}

func TestStatusCommand_MissingExplicitConfig(t *testing.T) {
	configFile = ""

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"status", "--config", "/nonexistent/gatehouse.yaml"})

	err := cmd.Execute()
	require.Error(t, err)

	var oopsErr oops.OopsError
	require.ErrorAs(t, err, &oopsErr)
	assert.Equal(t, "CONFIG_FILE_UNREADABLE", oopsErr.Code())
}
