package bootstrap

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	script, err := Render(Params{Environment: "prod", Port: 8080, Bucket: "prod-assets"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(script, "#!/bin/bash"))
	assert.Contains(t, script, "APP_ENVIRONMENT=prod")
	assert.Contains(t, script, "APP_PORT=8080")
	assert.Contains(t, script, "APP_ASSET_BUCKET=prod-assets")
}

func TestRender_DefaultPort(t *testing.T) {
	script, err := Render(Params{Environment: "prod"})
	require.NoError(t, err)
	assert.Contains(t, script, "APP_PORT=80")
}

func TestRenderBase64(t *testing.T) {
	encoded, err := RenderBase64(Params{Environment: "staging"})
	require.NoError(t, err)

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Contains(t, string(decoded), "APP_ENVIRONMENT=staging")
}
