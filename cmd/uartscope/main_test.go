package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute(), out.String())
	return out.String()
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(b)), "\n")
}

func TestLayoutsCommand(t *testing.T) {
	out := execute(t, "layouts")
	require.Contains(t, out, "control: [FF FF] mode:8 d_ctrl:12 yk:12 (5 bytes)")
	require.Contains(t, out, "raw16:")

	out = execute(t, "layouts", "--yaml", "adc12")
	require.Contains(t, out, "# adc12")
	require.Contains(t, out, "header: [255]")
}

func TestAcquireSimulatedAndRender(t *testing.T) {
	dir := t.TempDir()
	csvBase := filepath.Join(dir, "run")
	plot := filepath.Join(dir, "run.png")

	execute(t, "acquire",
		"--simulate", "--simulate-rate", "0",
		"--max-samples", "25",
		"--timeout", "100ms",
		"--output", csvBase,
		"--plot", plot, "--plot-every", "10",
	)

	lines := readLines(t, csvBase+".csv")
	require.Len(t, lines, 26)
	require.Equal(t, "index,timestamp_s,mode,d_ctrl,yk", lines[0])
	require.True(t, strings.HasPrefix(lines[25], "24,"))

	_, err := os.Stat(plot)
	require.NoError(t, err)

	rendered := filepath.Join(dir, "yk.png")
	execute(t, "render", csvBase+".csv", "--y", "yk", "--out", rendered)
	b, err := os.ReadFile(rendered)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(b, []byte("\x89PNG")))
}

func TestAcquireConfigFileWithOverrides(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "dual.csv")
	cfgPath := filepath.Join(dir, "lab.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
layout: dual
max_samples: 3
read_timeout: 100ms
output_file: `+out+`
`), 0o644))

	execute(t, "acquire", "--config", cfgPath, "--simulate", "--simulate-rate", "0", "--max-samples", "4")

	lines := readLines(t, out)
	require.Len(t, lines, 5)
	require.Equal(t, "index,timestamp_s,d_ctrl,yk", lines[0])
}

func TestAcquirePlayback(t *testing.T) {
	dir := t.TempDir()
	capture := filepath.Join(dir, "capture.bin")
	// two adc12 frames with noise in front
	require.NoError(t, os.WriteFile(capture, []byte{0x00, 0x12, 0xff, 0x01, 0x23, 0xff, 0x0f, 0xff}, 0o644))
	out := filepath.Join(dir, "adc.csv")

	execute(t, "acquire", "--playback", capture, "--layout", "adc12", "--timeout", "50ms", "--output", out)

	lines := readLines(t, out)
	require.Equal(t, []string{"index,timestamp_s,adc_value"}, lines[:1])
	require.Len(t, lines, 3)
	require.True(t, strings.HasSuffix(lines[1], ",291"))
	require.True(t, strings.HasSuffix(lines[2], ",4095"))
}
