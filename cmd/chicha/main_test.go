package main

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CHICHA_CONFIG", "")
	t.Setenv("CHICHA_LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		sendSearch, sendImage = false, false
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestSendNavigation(t *testing.T) {
	out, err := runCLI(t, "", "send", "From: Pune To: Mumbai")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "user: From: Pune To: Mumbai", lines[0])
	require.Contains(t, lines[1], "bot: 🗺️ Here's your route")
}

func TestSendReadsStdin(t *testing.T) {
	out, err := runCLI(t, "hello there\n", "send")
	require.NoError(t, err)
	require.Contains(t, out, `bot: You said "hello there".`)
}

func TestSendSearchWithoutFunctionsFails(t *testing.T) {
	t.Setenv("CHICHA_FUNCTIONS_URL", "")

	out, err := runCLI(t, "", "send", "--search", "golang")
	require.Error(t, err)
	require.Equal(t, "user: golang\n", out)
}
