package stdio

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discoveryd/discoveryd/internal/dispatch"
	"github.com/discoveryd/discoveryd/internal/registry"
)

func TestRunEchoesOneResponseLinePerRequestLine(t *testing.T) {
	r := registry.New()
	server := dispatch.New(r, nil)

	in := strings.NewReader(
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}` + "\n" +
			`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n" +
			`{"jsonrpc":"2.0","id":2,"method":"nope"}` + "\n",
	)
	var out bytes.Buffer

	tr := New(server, in, &out)
	require.NoError(t, tr.Run(context.Background()))

	lines := scanLines(t, &out)
	require.Len(t, lines, 2, "only the two requests should produce a response line")
	assert.Contains(t, lines[0], `"id":1`)
	assert.Contains(t, lines[1], `"id":2`)
	assert.Contains(t, lines[1], `"error"`)
}

func TestRunSkipsMalformedLinesWithoutCrashing(t *testing.T) {
	r := registry.New()
	server := dispatch.New(r, nil)

	in := strings.NewReader("not json at all\n" + `{"jsonrpc":"2.0","id":1,"method":"tools/list"}` + "\n")
	var out bytes.Buffer

	tr := New(server, in, &out)
	require.NoError(t, tr.Run(context.Background()))

	lines := scanLines(t, &out)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"id":1`)
}

func TestSessionIDIsStableAcrossRun(t *testing.T) {
	r := registry.New()
	server := dispatch.New(r, nil)
	tr := New(server, strings.NewReader(""), &bytes.Buffer{})

	first := tr.SessionID()
	require.NoError(t, tr.Run(context.Background()))
	assert.Equal(t, first, tr.SessionID())
}

func scanLines(t *testing.T, buf *bytes.Buffer) []string {
	t.Helper()
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	require.NoError(t, scanner.Err())
	return lines
}
