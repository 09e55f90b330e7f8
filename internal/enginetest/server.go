// Package enginetest provides in-process stand-ins for the KNIME engine:
// a fake server speaking the job REST contract and shell stubs emulating
// the local batch executor. Tests use these to exercise the transports
// without a real engine installation.
package enginetest

import (
	"encoding/base64"
	"encoding/json"
	"net"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"yqhp/knime-bridge/pkg/types"
)

// Server is a fake KNIME server. Behavior knobs are plain fields; configure
// them before Start.
type Server struct {
	// User and Password are the accepted credentials. Empty means any.
	User     string
	Password string
	// Workflows restricts the known workflow paths; nil accepts all.
	Workflows map[string]bool
	// StickRunning keeps every job in the running state forever.
	StickRunning bool
	// FailMessage, when set, finishes every job as failed with this text.
	FailMessage string
	// TransientFailures makes the next N requests answer 503 before
	// behaving normally again.
	TransientFailures int

	app *fiber.App
	ln  net.Listener

	mu   sync.Mutex
	jobs map[string]*job
}

type job struct {
	id      string
	status  types.JobStatus
	message string
	inputs  []json.RawMessage
}

// Start binds the server to a random loopback port.
func (s *Server) Start() error {
	s.jobs = make(map[string]*job)
	s.app = fiber.New(fiber.Config{DisableStartupMessage: true})

	s.app.Use(s.gate)
	s.app.Post("/jobs", s.handleCreate)
	s.app.Get("/jobs/:id", s.handleStatus)
	s.app.Get("/jobs/:id/results", s.handleResults)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	s.ln = ln
	go s.app.Listener(ln) //nolint:errcheck
	return nil
}

// URL returns the server root.
func (s *Server) URL() string {
	return "http://" + s.ln.Addr().String()
}

// Stop shuts the server down.
func (s *Server) Stop() error {
	return s.app.Shutdown()
}

// JobCount returns the number of jobs ever created.
func (s *Server) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// JobIDs returns the IDs of all jobs ever created, in no particular order.
func (s *Server) JobIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	return ids
}

// gate applies the transient-failure and authentication knobs to every
// request.
func (s *Server) gate(c *fiber.Ctx) error {
	s.mu.Lock()
	transient := s.TransientFailures > 0
	if transient {
		s.TransientFailures--
	}
	s.mu.Unlock()
	if transient {
		return c.Status(fiber.StatusServiceUnavailable).
			JSON(types.ErrorResponse{Error: "unavailable", Message: "transient backend failure"})
	}
	if !s.authorized(c) {
		return c.Status(fiber.StatusUnauthorized).
			JSON(types.ErrorResponse{Error: "unauthorized", Message: "bad credentials"})
	}
	return c.Next()
}

func (s *Server) authorized(c *fiber.Ctx) bool {
	if s.User == "" {
		return true
	}
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte(s.User+":"+s.Password))
	return c.Get(fiber.HeaderAuthorization) == want
}

func (s *Server) handleCreate(c *fiber.Ctx) error {
	var req types.CreateJobRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).
			JSON(types.ErrorResponse{Error: "bad-request", Message: err.Error()})
	}
	if s.Workflows != nil && !s.Workflows[req.Workflow] {
		return c.Status(fiber.StatusNotFound).
			JSON(types.ErrorResponse{Error: "not-found", Message: "no such workflow: " + req.Workflow})
	}

	j := &job{id: uuid.NewString(), inputs: req.Inputs}
	switch {
	case s.StickRunning:
		j.status = types.JobRunning
	case s.FailMessage != "":
		j.status = types.JobFailed
		j.message = s.FailMessage
	default:
		// Passthrough workflow: outputs mirror inputs.
		j.status = types.JobSucceeded
	}

	s.mu.Lock()
	s.jobs[j.id] = j
	s.mu.Unlock()
	return c.Status(fiber.StatusCreated).JSON(types.CreateJobResponse{JobID: j.id})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	s.mu.Lock()
	j, ok := s.jobs[c.Params("id")]
	s.mu.Unlock()
	if !ok {
		return c.Status(fiber.StatusNotFound).
			JSON(types.ErrorResponse{Error: "not-found", Message: "no such job"})
	}
	return c.JSON(types.JobStatusResponse{JobID: j.id, Status: j.status, Message: j.message})
}

func (s *Server) handleResults(c *fiber.Ctx) error {
	s.mu.Lock()
	j, ok := s.jobs[c.Params("id")]
	s.mu.Unlock()
	if !ok {
		return c.Status(fiber.StatusNotFound).
			JSON(types.ErrorResponse{Error: "not-found", Message: "no such job"})
	}
	if j.status != types.JobSucceeded {
		return c.Status(fiber.StatusConflict).
			JSON(types.ErrorResponse{Error: "conflict", Message: "job has not succeeded"})
	}
	return c.JSON(types.JobResultsResponse{JobID: j.id, Outputs: j.inputs})
}
