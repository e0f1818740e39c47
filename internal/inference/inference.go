// Package inference wraps the generative model behind a capability object
// that is built once at startup and passed to the pipeline.
package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// ErrServiceUnavailable means no generator is configured.
	ErrServiceUnavailable = errors.New("inference service unavailable")
	// ErrTimeout means the call exceeded its bound.
	ErrTimeout = errors.New("inference request timed out")
	// ErrRemote covers any other failure reported by the generator.
	ErrRemote = errors.New("inference request failed")
)

// Payload is the content sent alongside the instructions. Either Data
// (with MIMEType) or Text is set.
type Payload struct {
	Data     []byte
	MIMEType string
	Text     string
}

// Bytes returns a binary payload.
func Bytes(data []byte, mimeType string) Payload {
	return Payload{Data: data, MIMEType: mimeType}
}

// Text returns a text payload.
func Text(s string) Payload {
	return Payload{Text: s}
}

// Generator is the model-specific backend.
type Generator interface {
	Generate(ctx context.Context, instructions string, payload Payload) (string, error)
}

// Client is the inference capability. A Client built with Unconfigured
// fails every call with ErrServiceUnavailable.
type Client struct {
	gen    Generator
	reason string
	logger *slog.Logger
}

// New returns an available client backed by gen.
func New(gen Generator, logger *slog.Logger) *Client {
	if gen == nil {
		return Unconfigured("no generator provided", logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{gen: gen, logger: logger}
}

// Unconfigured returns a client that records why inference is unavailable.
func Unconfigured(reason string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{reason: reason, logger: logger}
}

// Available reports whether calls can reach a generator.
func (c *Client) Available() bool {
	return c != nil && c.gen != nil
}

// Reason explains why the client is unavailable.
func (c *Client) Reason() string {
	if c == nil {
		return "inference client not initialized"
	}
	return c.reason
}

// Infer sends instructions and payload to the generator. A positive timeout
// bounds the call even when the generator ignores cancellation.
func (c *Client) Infer(ctx context.Context, instructions string, payload Payload, timeout time.Duration) (string, error) {
	if !c.Available() {
		return "", fmt.Errorf("%w: %s", ErrServiceUnavailable, c.Reason())
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("generator panicked: %v", r)}
			}
		}()
		text, err := c.gen.Generate(callCtx, instructions, payload)
		done <- result{text: text, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if timedOut(ctx, callCtx) {
				return "", fmt.Errorf("%w after %s", ErrTimeout, timeout)
			}
			c.logger.Debug("inference call failed", "error", res.err, "elapsedMs", time.Since(start).Milliseconds())
			return "", fmt.Errorf("%w: %w", ErrRemote, res.err)
		}
		return res.text, nil
	case <-callCtx.Done():
		if timedOut(ctx, callCtx) {
			return "", fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return "", fmt.Errorf("%w: %w", ErrRemote, callCtx.Err())
	}
}

// timedOut reports whether callCtx hit its own deadline while the parent
// is still live.
func timedOut(parent, callCtx context.Context) bool {
	return errors.Is(callCtx.Err(), context.DeadlineExceeded) && parent.Err() == nil
}
