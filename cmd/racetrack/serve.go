package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/OCAP2/racetrack/internal/dispatcher"
	"github.com/OCAP2/racetrack/internal/util"
)

// Reply prefixes written for every dispatched line.
const (
	replyOK    = "ok"
	replyError = "error"
)

// maxLineSize bounds a single command line; course definitions can be long.
const maxLineSize = 1 << 20

// serve reads `:CMD:|arg|arg` lines from r, dispatches them and writes one
// reply line per command to w. It returns when r is exhausted or ctx is done.
func serve(ctx context.Context, r io.Reader, w io.Writer, d *dispatcher.Dispatcher) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	out := bufio.NewWriter(w)
	defer out.Flush()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			command, args := util.SplitCommandLine(line)
			if command == "" {
				continue
			}
			result, err := d.Dispatch(dispatcher.Event{Command: command, Args: args, Timestamp: time.Now()})
			fmt.Fprintln(out, formatReply(command, result, err))
			if err := out.Flush(); err != nil {
				return err
			}
		}
	}
}

func formatReply(command string, result any, err error) string {
	if err != nil {
		return strings.Join([]string{replyError, command, err.Error()}, util.ArgSeparator)
	}
	var body string
	switch v := result.(type) {
	case nil:
	case string:
		body = v
	case fmt.Stringer:
		body = v.String()
	default:
		b, mErr := json.Marshal(v)
		if mErr != nil {
			body = fmt.Sprint(v)
		} else {
			body = string(b)
		}
	}
	return strings.Join([]string{replyOK, command, body}, util.ArgSeparator)
}
