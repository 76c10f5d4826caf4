package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentinel-ops/sentinel/internal/app"
	_ "github.com/sentinel-ops/sentinel/internal/testing/guard"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	require.True(t, app.InTestMode())
	require.NotPanics(t, main)
}
