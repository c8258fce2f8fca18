// Package client extracts ranges from a remote logseek server.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/therealutkarshpriyadarshi/logseek/internal/config"
	"github.com/therealutkarshpriyadarshi/logseek/internal/logging"
	"github.com/therealutkarshpriyadarshi/logseek/internal/server"
)

const maxErrorBody = 4096

var (
	ErrNoServer  = errors.New("no server configured")
	ErrForbidden = errors.New("path not allowed by server")
	ErrNotFound  = errors.New("log not found on server")
)

// StatusError is returned for any other non-200 answer
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Result describes a remote extraction
type Result struct {
	RequestID string
	Mode      string
	Offset    uint64
	Fallback  bool
	Bytes     int64
}

// Client talks to the /extract endpoint
type Client struct {
	client *resty.Client
	logger *logging.Logger
}

// New creates a client for cfg.Server
func New(cfg config.ClientConfig, logger *logging.Logger) (*Client, error) {
	if cfg.Server == "" {
		return nil, ErrNoServer
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultClientTimeout
	}

	// the timeout bounds connecting and waiting for headers; the body of a
	// large range streams for as long as ctx allows
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = timeout
	transport.ResponseHeaderTimeout = timeout

	rc := resty.New().
		SetTransport(transport).
		SetBaseURL(strings.TrimRight(cfg.Server, "/")).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || resp.StatusCode() >= http.StatusInternalServerError
		})

	return &Client{
		client: rc,
		logger: logger.WithComponent("client").WithField("server", cfg.Server),
	}, nil
}

// Extract streams the range of logPath starting near ts into w
func (c *Client) Extract(ctx context.Context, logPath string, ts uint64, w io.Writer) (*Result, error) {
	return c.get(ctx, map[string]string{
		"path": logPath,
		"ts":   strconv.FormatUint(ts, 10),
	}, w)
}

// ExtractAll streams the whole of logPath into w
func (c *Client) ExtractAll(ctx context.Context, logPath string, w io.Writer) (*Result, error) {
	return c.get(ctx, map[string]string{"path": logPath}, w)
}

func (c *Client) get(ctx context.Context, params map[string]string, w io.Writer) (*Result, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetDoNotParseResponse(true).
		Get(server.ExtractPath)
	if err != nil {
		return nil, fmt.Errorf("failed to request range: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
		text := strings.TrimSpace(string(msg))
		switch resp.StatusCode() {
		case http.StatusForbidden:
			return nil, fmt.Errorf("%w: %s", ErrForbidden, text)
		case http.StatusNotFound:
			return nil, fmt.Errorf("%w: %s", ErrNotFound, params["path"])
		default:
			return nil, &StatusError{Code: resp.StatusCode(), Message: text}
		}
	}

	header := resp.Header()
	result := &Result{
		RequestID: header.Get(server.HeaderRequestID),
		Mode:      header.Get(server.HeaderMode),
		Fallback:  header.Get(server.HeaderFallback) == "true",
	}
	if v := header.Get(server.HeaderOffset); v != "" {
		result.Offset, _ = strconv.ParseUint(v, 10, 64)
	}

	result.Bytes, err = io.Copy(w, body)
	if err != nil {
		return result, fmt.Errorf("failed to stream range: %w", err)
	}

	c.logger.Debug().
		Str("request_id", result.RequestID).
		Str("path", params["path"]).
		Uint64("offset", result.Offset).
		Int64("bytes", result.Bytes).
		Bool("fallback", result.Fallback).
		Msg("Remote range received")
	return result, nil
}
