package mount

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os/exec"
	"strconv"
	"strings"
	"time"

	rhttp "github.com/hashicorp/go-retryablehttp"
	"github.com/marmos91/stowage/internal/logger"
)

// ExitCodeHeader carries the exit status of a remotely executed command.
const ExitCodeHeader = "X-Shell2http-Exit-Code"

// Remote-exec transport defaults.
const (
	DefaultExecTimeout  = 15 * time.Second
	DefaultExecRetryMax = 2
)

// LocalWaitDelay bounds how long a local command's output is waited for once
// the command has exited or its context is done.
const LocalWaitDelay = 2 * time.Second

// Result is the outcome of a command that ran to completion.
type Result struct {
	ExitCode int
	Output   string
}

// OK reports whether the command exited with status 0.
func (r Result) OK() bool { return r.ExitCode == 0 }

// Executor runs a single command.
//
// A returned error means the command could not be run at all (binary missing,
// transport failure, timeout). A command that ran and failed is reported
// through Result.ExitCode with a nil error.
type Executor interface {
	Run(ctx context.Context, argv []string) (Result, error)
}

// LocalExecutor runs commands as local subprocesses.
type LocalExecutor struct{}

// NewLocalExecutor returns an executor running local subprocesses.
func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{}
}

// Run executes argv and collects combined stdout and stderr. The command is
// killed when ctx is done. Output held open by a background child (a
// daemonizing FUSE client) is abandoned after LocalWaitDelay.
func (e *LocalExecutor) Run(ctx context.Context, argv []string) (Result, error) {
	if len(argv) == 0 {
		return Result{}, errors.New("empty command")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.WaitDelay = LocalWaitDelay
	out, err := cmd.CombinedOutput()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{Output: string(out)}, fmt.Errorf("%s: %w", argv[0], ctxErr)
	}
	if errors.Is(err, exec.ErrWaitDelay) {
		// Exited successfully, a background child still held the output
		logger.Debug("%s left its output open, not waiting for it", argv[0])
		return Result{Output: string(out)}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Result{ExitCode: exitErr.ExitCode(), Output: string(out)}, nil
	}
	if err != nil {
		return Result{Output: string(out)}, fmt.Errorf("%s: %w", argv[0], err)
	}
	return Result{Output: string(out)}, nil
}

// RemoteExecutor runs commands in a separate execution context (typically the
// pod hosting the FUSE client) through a shell2http style endpoint:
//
//	GET {endpoint}/exec?cmd=<base64 of the space-joined command>
//
// The response body is the command output and the ExitCodeHeader header its
// exit status.
type RemoteExecutor struct {
	endpoint string
	client   *rhttp.Client
}

// NewRemoteExecutor creates an executor for endpoint. Each request is bounded
// by timeout; connection failures and responses without an exit code are
// retried up to retryMax times. Zero values select the defaults.
func NewRemoteExecutor(endpoint string, timeout time.Duration, retryMax int) *RemoteExecutor {
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}
	if retryMax < 0 {
		retryMax = 0
	} else if retryMax == 0 {
		retryMax = DefaultExecRetryMax
	}

	client := rhttp.NewClient()
	client.Logger = nil // requests are logged by Run
	client.HTTPClient.Timeout = timeout
	client.RetryMax = retryMax
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.CheckRetry = retryWithoutExitCode
	client.ErrorHandler = rhttp.PassthroughErrorHandler

	return &RemoteExecutor{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   client,
	}
}

// retryWithoutExitCode retries transport failures and responses that carry
// no exit code. A response with an exit code is final, whatever its value:
// a failed command is never re-issued by the transport.
func retryWithoutExitCode(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if resp != nil && resp.Header.Get(ExitCodeHeader) != "" {
		return false, nil
	}
	return rhttp.DefaultRetryPolicy(ctx, resp, err)
}

// Run sends argv to the endpoint.
func (e *RemoteExecutor) Run(ctx context.Context, argv []string) (Result, error) {
	if len(argv) == 0 {
		return Result{}, errors.New("empty command")
	}

	command := strings.Join(argv, " ")
	encoded := base64.StdEncoding.EncodeToString([]byte(command))
	target := e.endpoint + "/exec?cmd=" + url.QueryEscape(encoded)

	logger.Debug("Executing command in remote context %s: %s", e.endpoint, argv[0])

	req, err := rhttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Result{}, fmt.Errorf("remote exec %s: %w", argv[0], err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("remote exec %s: %w", argv[0], err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body bytes.Buffer
	if _, err := io.Copy(&body, resp.Body); err != nil {
		return Result{}, fmt.Errorf("remote exec %s: read response: %w", argv[0], err)
	}

	header := resp.Header.Get(ExitCodeHeader)
	if header == "" {
		return Result{Output: body.String()}, fmt.Errorf("remote exec %s: response %s without %s header",
			argv[0], resp.Status, ExitCodeHeader)
	}
	code, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil {
		return Result{Output: body.String()}, fmt.Errorf("remote exec %s: invalid exit code %q: %w",
			argv[0], header, err)
	}

	if code != 0 {
		logger.Error("Failed executing %s on %s with exit code %d", argv[0], e.endpoint, code)
	} else {
		logger.Debug("Command %s executed successfully on %s", argv[0], e.endpoint)
	}

	return Result{ExitCode: code, Output: body.String()}, nil
}
