// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")

	logger.Info("hidden")
	logger.Warn("login_failed", "reason", "invalid_password")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "login_failed", entry["msg"])
	assert.Equal(t, "invalid_password", entry["reason"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "debug", "text")

	logger.Debug("session_fingerprint_mismatch", "user_id", 7)

	assert.Contains(t, buf.String(), "session_fingerprint_mismatch")
	assert.Contains(t, buf.String(), "user_id=7")
}
