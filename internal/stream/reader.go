package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

const (
	dataPrefix    = "data: "
	maxRecordSize = 1024 * 1024
)

// Result wraps an event or a terminal read error.
type Result struct {
	Event Event
	Err   error
}

// Read decodes newline-delimited "data: " records from body and sends them on
// the returned channel, which is closed when the body is exhausted, a read
// fails, or ctx is done. Blank lines, lines without the data prefix and
// records that fail to decode are skipped. Read closes body.
func Read(ctx context.Context, body io.ReadCloser, logger *slog.Logger) <-chan Result {
	if logger == nil {
		logger = slog.Default()
	}
	out := make(chan Result)
	go readLoop(ctx, body, logger, out)
	return out
}

func readLoop(ctx context.Context, body io.ReadCloser, logger *slog.Logger, out chan<- Result) {
	defer close(out)
	defer body.Close()

	reader := bufio.NewReaderSize(body, 64*1024)

	send := func(r Result) bool {
		select {
		case out <- r:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		line, err := readLine(reader)
		if errors.Is(err, errRecordTooLong) {
			logger.Debug("skipping oversized stream record", slog.Int("limit", maxRecordSize))
			continue
		}
		if len(line) > 0 && strings.HasPrefix(line, dataPrefix) {
			ev, derr := DecodeEvent([]byte(strings.TrimPrefix(line, dataPrefix)))
			if derr != nil {
				logger.Debug("skipping malformed stream record", slog.String("error", derr.Error()))
			} else if !send(Result{Event: ev}) {
				return
			}
		}
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			send(Result{Err: fmt.Errorf("stream read error: %w", err)})
			return
		}
	}
}

var errRecordTooLong = errors.New("stream record too long")

// readLine returns the next line without its terminator. A line longer than
// maxRecordSize is consumed and reported as errRecordTooLong. A final line
// without a terminator is returned together with io.EOF.
func readLine(r *bufio.Reader) (string, error) {
	var (
		buf     []byte
		tooLong bool
	)
	for {
		chunk, err := r.ReadSlice('\n')
		switch {
		case tooLong:
		case len(buf)+len(chunk) > maxRecordSize+2:
			tooLong, buf = true, nil
		default:
			buf = append(buf, chunk...)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if tooLong && err == nil {
			return "", errRecordTooLong
		}
		return strings.TrimRight(string(buf), "\r\n"), err
	}
}
