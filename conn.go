package connector

import (
	"context"
	"errors"
	"fmt"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// maxMessageSize bounds how much of a rejected response body is logged.
const maxMessageSize = 4096

var errNotOpen = errors.New("write stream is not open")

type roundTrip struct {
	resp *http.Response
	err  error
}

// writeStream is an HTTP POST whose body is fed line by line while the request is in flight.
type writeStream struct {
	pw   *io.PipeWriter
	done chan roundTrip
}

// connManager owns at most one open writeStream. It is not safe for concurrent use;
// the Connector serializes access to it.
type connManager struct {
	ctx         context.Context
	client      *http.Client
	logger      *zap.Logger
	reportError ErrorListener
	stream      *writeStream
}

func newConnManager(ctx context.Context, connectTimeout time.Duration, logger *zap.Logger, reportError ErrorListener) *connManager {
	dialer := &net.Dialer{Timeout: connectTimeout}
	// No overall client timeout: a batch stays open across many polling cycles.
	client := &http.Client{
		Transport: &http.Transport{
			DialContext:       dialer.DialContext,
			DisableKeepAlives: true,
		},
	}
	return &connManager{
		ctx:         ctx,
		client:      client,
		logger:      logger,
		reportError: reportError,
	}
}

func (m *connManager) isOpen() bool {
	return m.stream != nil
}

// ensure returns the open stream, opening a new one to writeURL when none is open.
func (m *connManager) ensure(writeURL string) (*writeStream, error) {
	if m.stream != nil {
		return m.stream, nil
	}

	pr, pw := io.Pipe()
	req, err := http.NewRequestWithContext(m.ctx, http.MethodPost, writeURL, pr)
	if err != nil {
		_ = pr.Close()
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	req.Header.Set("Accept-Charset", "utf-8")
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.ContentLength = -1
	req.Close = true

	s := &writeStream{pw: pw, done: make(chan roundTrip, 1)}
	go func() {
		resp, err := m.client.Do(req)
		if err != nil {
			// unblocks pending and future writes with the transport error
			pr.CloseWithError(err)
		}
		s.done <- roundTrip{resp: resp, err: err}
	}()

	m.stream = s
	m.logger.Debug("Opened write stream", zap.String("url", writeURL))
	return s, nil
}

// write appends line to the open stream. A failed write releases the stream before the
// error is returned.
func (m *connManager) write(line string) error {
	if m.stream == nil {
		return errNotOpen
	}
	if _, err := io.WriteString(m.stream.pw, line); err != nil {
		writeErr := fmt.Errorf("failed to write line: %w", err)
		if releaseErr := m.release(); releaseErr != nil && !errors.Is(releaseErr, err) {
			writeErr = multierr.Append(writeErr, releaseErr)
		}
		return writeErr
	}
	return nil
}

// release completes the open request and waits for its response. Responses other than
// 200 and 204 are logged and reported, not returned. It is a no-op when nothing is open.
func (m *connManager) release() error {
	s := m.stream
	if s == nil {
		return nil
	}
	m.stream = nil

	_ = s.pw.Close()
	rt := <-s.done
	if rt.err != nil {
		return fmt.Errorf("failed to send batch: %w", rt.err)
	}
	defer rt.resp.Body.Close()

	if rt.resp.StatusCode != http.StatusOK && rt.resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(rt.resp.Body, maxMessageSize))
		message := strings.TrimSpace(string(body))
		m.logger.Warn("Write rejected by InfluxDB",
			zap.Int("code", rt.resp.StatusCode),
			zap.String("message", message))
		m.reportError(fmt.Errorf("line protocol write returned %q %q", rt.resp.Status, message))
	}
	_, _ = io.Copy(io.Discard, rt.resp.Body)
	return nil
}

func (m *connManager) shutdown() error {
	err := m.release()
	m.client.CloseIdleConnections()
	return err
}
