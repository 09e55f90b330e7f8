package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"yqhp/knime-bridge/pkg/logger"
	"yqhp/knime-bridge/pkg/table"
	"yqhp/knime-bridge/pkg/types"
)

const (
	// maxAttempts is the per-request budget for transient failures.
	maxAttempts = 3
	// retryBaseBackoff doubles per attempt.
	retryBaseBackoff = 100 * time.Millisecond
)

// Remote executes workflows as jobs on a KNIME server: create the job with
// the serialized inputs, poll its status, download the results.
type Remote struct {
	urlRoot  string
	user     string
	password string
	client   *fasthttp.Client
}

// NewRemote creates a remote transport. Credentials are checked at execute
// time so that a handle can be built before they are known.
func NewRemote(urlRoot, user, password string) *Remote {
	return &Remote{
		urlRoot:  strings.TrimRight(urlRoot, "/"),
		user:     user,
		password: password,
		client: &fasthttp.Client{
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

var _ Transport = (*Remote)(nil)

// Execute submits the workflow at ref as a job and polls it until terminal
// or until the timeout elapses. A timed-out job is left on the server; it
// can still be queried through JobStatus afterwards.
func (r *Remote) Execute(ctx context.Context, ref string, inputs []types.DataTable, opts Options) (*types.ExecutionResult, error) {
	start := time.Now()

	if err := r.checkCredentials(); err != nil {
		return nil, err
	}

	wireInputs := make([]json.RawMessage, len(inputs))
	for i, dt := range inputs {
		buf, err := table.MarshalWire(dt)
		if err != nil {
			return nil, err
		}
		wireInputs[i] = buf
	}

	jobID, err := r.createJob(ctx, ref, wireInputs, opts)
	if err != nil {
		return nil, err
	}
	logger.Debug("created job %s for workflow %s", jobID, ref)

	status, err := r.pollUntilTerminal(ctx, jobID, opts)
	if err != nil {
		return nil, err
	}
	if status.Status != types.JobSucceeded {
		return nil, types.NewDiagnosticError(types.CodeExecutionFailed,
			fmt.Sprintf("job %s finished as %s", jobID, status.Status), status.Message, nil)
	}

	outputs, err := r.fetchResults(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &types.ExecutionResult{
		Status:   types.ExecutionSucceeded,
		Outputs:  outputs,
		JobID:    jobID,
		Duration: time.Since(start),
	}, nil
}

// JobStatus queries a job's current state without waiting.
func (r *Remote) JobStatus(ctx context.Context, jobID string) (*types.JobStatusResponse, error) {
	if err := r.checkCredentials(); err != nil {
		return nil, err
	}
	body, err := r.do(ctx, fiber.MethodGet, r.urlRoot+"/jobs/"+jobID, nil)
	if err != nil {
		return nil, err
	}
	var status types.JobStatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, types.NewError(types.CodeTransport, "unmarshaling job status", err)
	}
	return &status, nil
}

func (r *Remote) checkCredentials() error {
	var missing []string
	if r.urlRoot == "" {
		missing = append(missing, "server url")
	}
	if r.user == "" {
		missing = append(missing, "user")
	}
	if r.password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return types.NewError(types.CodeMissingCredentials,
			"missing server credentials: "+strings.Join(missing, ", "), nil)
	}
	return nil
}

func (r *Remote) createJob(ctx context.Context, ref string, inputs []json.RawMessage, opts Options) (string, error) {
	reqBody, err := json.Marshal(&types.CreateJobRequest{
		Workflow: ref,
		Reset:    opts.Reset,
		Inputs:   inputs,
	})
	if err != nil {
		return "", types.NewError(types.CodeTransport, "marshaling job request", err)
	}
	body, err := r.do(ctx, fiber.MethodPost, r.urlRoot+"/jobs", reqBody)
	if err != nil {
		return "", err
	}
	var created types.CreateJobResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return "", types.NewError(types.CodeTransport, "unmarshaling job-creation response", err)
	}
	if created.JobID == "" {
		return "", types.NewError(types.CodeTransport, "server returned no job id", nil)
	}
	return created.JobID, nil
}

func (r *Remote) pollUntilTerminal(ctx context.Context, jobID string, opts Options) (*types.JobStatusResponse, error) {
	deadline := time.Now().Add(opts.timeout())
	for {
		status, err := r.JobStatus(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if status.Status.IsTerminal() {
			return status, nil
		}
		if time.Now().After(deadline) {
			// The remote job is deliberately not deleted; it may still be
			// queried or finish on its own.
			return nil, types.NewError(types.CodeExecutionTimeout,
				fmt.Sprintf("job %s still %s after %v", jobID, status.Status, opts.timeout()), nil)
		}
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return nil, types.NewError(types.CodeExecutionTimeout,
					fmt.Sprintf("job %s: %v", jobID, ctx.Err()), ctx.Err())
			}
			return nil, types.NewError(types.CodeTransport,
				fmt.Sprintf("polling job %s aborted", jobID), ctx.Err())
		case <-time.After(opts.pollInterval()):
		}
	}
}

func (r *Remote) fetchResults(ctx context.Context, jobID string) ([]types.DataTable, error) {
	body, err := r.do(ctx, fiber.MethodGet, r.urlRoot+"/jobs/"+jobID+"/results", nil)
	if err != nil {
		return nil, err
	}
	var results types.JobResultsResponse
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, types.NewError(types.CodeTransport, "unmarshaling job results", err)
	}
	outputs := make([]types.DataTable, 0, len(results.Outputs))
	for _, raw := range results.Outputs {
		dt, err := table.UnmarshalWire(raw)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, dt)
	}
	return outputs, nil
}

// do performs one HTTP request with basic auth and bounded retries on
// transient failures. Non-retryable statuses map straight onto the error
// taxonomy with the server body preserved as diagnostic.
func (r *Remote) do(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var lastErr error
	backoff := retryBaseBackoff

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			logger.Debug("retrying %s %s (attempt %d)", method, url, attempt)
			select {
			case <-ctx.Done():
				return nil, types.NewError(types.CodeTransport, "request aborted", ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		status, respBody, err := r.roundTrip(method, url, body)
		if err != nil {
			lastErr = err
			continue
		}
		if status >= 200 && status < 300 {
			return respBody, nil
		}
		if coded := classifyStatus(status, respBody); coded != nil {
			return nil, coded
		}
		lastErr = fmt.Errorf("%s %s: status %d: %s", method, url, status, respBody)
	}

	return nil, types.NewError(types.CodeTransport,
		fmt.Sprintf("retry budget exhausted after %d attempts", maxAttempts), lastErr)
}

func (r *Remote) roundTrip(method, url string, body []byte) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(method)
	req.Header.SetContentType(fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderAuthorization, r.basicAuth())
	if body != nil {
		req.SetBody(body)
	}

	if err := r.client.Do(req, resp); err != nil {
		return 0, nil, err
	}
	out := make([]byte, len(resp.Body()))
	copy(out, resp.Body())
	return resp.StatusCode(), out, nil
}

func (r *Remote) basicAuth() string {
	cred := base64.StdEncoding.EncodeToString([]byte(r.user + ":" + r.password))
	return "Basic " + cred
}

// classifyStatus maps non-retryable HTTP statuses onto coded errors. It
// returns nil for statuses the retry loop should keep trying.
func classifyStatus(status int, body []byte) error {
	diagnostic := serverMessage(body)
	switch status {
	case fiber.StatusUnauthorized, fiber.StatusForbidden:
		return types.NewDiagnosticError(types.CodeAuthentication,
			fmt.Sprintf("server rejected credentials (status %d)", status), diagnostic, nil)
	case fiber.StatusNotFound:
		return types.NewDiagnosticError(types.CodeWorkflowNotFound,
			"no such workflow or job on server", diagnostic, nil)
	}
	if isRetryableStatus(status) {
		return nil
	}
	return types.NewDiagnosticError(types.CodeExecutionFailed,
		fmt.Sprintf("server error (status %d)", status), diagnostic, nil)
}

func isRetryableStatus(status int) bool {
	switch status {
	case fiber.StatusRequestTimeout, fiber.StatusTooManyRequests:
		return true
	}
	return status >= 500
}

// serverMessage extracts the error envelope's message, falling back to the
// raw body.
func serverMessage(body []byte) string {
	var errResp types.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		if errResp.Message != "" {
			return errResp.Message
		}
		if errResp.Error != "" {
			return errResp.Error
		}
	}
	return string(body)
}
