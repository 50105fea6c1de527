package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/discoveryd/discoveryd/internal/dispatch"
	"github.com/discoveryd/discoveryd/pkg/logging"
)

// maxLineBytes bounds a single incoming line to guard against an
// unbounded client flooding the process with one giant line; bufio's
// default token size is small, so this raises the scanner's buffer
// rather than adding a new limit.
const maxLineBytes = 16 * 1024 * 1024

// Transport runs the stdio loop: newline-delimited JSON on
// stdin/stdout, one process-unique session, no cancellation beyond
// process termination.
type Transport struct {
	server    *dispatch.Server
	sessionID string

	in  io.Reader
	out io.Writer

	writeMu sync.Mutex
}

// New constructs a stdio Transport bound to r/w. Production callers
// pass os.Stdin/os.Stdout; tests pass in-memory pipes.
func New(server *dispatch.Server, r io.Reader, w io.Writer) *Transport {
	return &Transport{
		server:    server,
		sessionID: uuid.NewString(),
		in:        r,
		out:       w,
	}
}

// SessionID returns the single process-unique session id.
func (t *Transport) SessionID() string {
	return t.sessionID
}

// Run reads newline-delimited JSON messages from stdin until EOF or
// ctx is cancelled, dispatching each and writing any response back to
// stdout on its own line. Back-pressure is left entirely to the OS
// pipe buffer.
func (t *Transport) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	logging.Info("Transport", "stdio session %s started", logging.TruncateSessionID(t.sessionID))
	defer logging.Info("Transport", "stdio session %s ended", logging.TruncateSessionID(t.sessionID))

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		// Copy out of the scanner's reused buffer before handing off.
		raw := append([]byte(nil), line...)

		t.handleLine(ctx, raw)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stdio: reading stdin: %w", err)
	}
	return nil
}

func (t *Transport) handleLine(ctx context.Context, raw []byte) {
	msg, err := dispatch.Parse(raw)
	if err != nil {
		// Malformed messages are treated as notifications so they never
		// block the pipeline; there is nothing to write back, just log
		// it.
		logging.Warn("Transport", "stdio: dropping malformed message: %v", err)
		return
	}

	resp, hasResp := t.server.Handle(ctx, msg)
	if !hasResp {
		return
	}
	t.writeMessage(resp)
}

func (t *Transport) writeMessage(msg dispatch.Message) {
	enc, err := json.Marshal(msg)
	if err != nil {
		logging.Error("Transport", err, "stdio: marshaling response")
		return
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.out.Write(append(enc, '\n')); err != nil {
		logging.Error("Transport", err, "stdio: writing response")
	}
}
