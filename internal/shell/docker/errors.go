package docker

import (
	"errors"
	"fmt"
	"strings"

	cerrdefs "github.com/containerd/errdefs"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Container errors
	ErrContainerNotFound       = errors.New("container not found")
	ErrContainerAlreadyExists  = errors.New("container name in use")
	ErrContainerNotRunning     = errors.New("container not running")
	ErrContainerAlreadyRunning = errors.New("container already running")

	// Network errors
	ErrNetworkNotFound      = errors.New("network not found")
	ErrNetworkAlreadyExists = errors.New("network name in use")
	ErrNetworkInUse         = errors.New("network still has endpoints")

	// Image errors
	ErrImageNotFound   = errors.New("image not found")
	ErrImagePullFailed = errors.New("image pull failed")
	ErrImageBuild      = errors.New("image build failed")

	ErrExecFailed           = errors.New("exec failed")
	ErrPortAlreadyAllocated = errors.New("host port already allocated")
	ErrConnectionFailed     = errors.New("docker engine unreachable")
)

// DockerError is a failed engine call. Err is the sentinel that classifies
// it; Message keeps the daemon's own text.
type DockerError struct {
	Op      string // SDK operation, e.g. "StartContainer"
	Entity  string // container, network or image
	ID      string
	Message string
	Err     error
}

func (e *DockerError) Error() string {
	subject := e.Op
	if e.Entity != "" {
		subject += " " + e.Entity
	}
	if e.ID != "" {
		subject += " " + e.ID
	}
	return fmt.Sprintf("%s: %s", subject, e.Message)
}

func (e *DockerError) Unwrap() error {
	return e.Err
}

// NewDockerError creates a new DockerError.
func NewDockerError(op, entity, id, message string, err error) *DockerError {
	return &DockerError{Op: op, Entity: entity, ID: id, Message: message, Err: err}
}

// =============================================================================
// Classification
// =============================================================================

// daemonMessages are conditions the daemon reports only in the error text.
// Checked in order, before the status-code classes.
var daemonMessages = []struct {
	text string
	err  error
}{
	{"port is already allocated", ErrPortAlreadyAllocated},
	{"address already in use", ErrPortAlreadyAllocated},
	{"is already running", ErrContainerAlreadyRunning},
	{"is not running", ErrContainerNotRunning},
	{"has active endpoints", ErrNetworkInUse},
	{"manifest unknown", ErrImageNotFound},
	{"repository does not exist", ErrImageNotFound},
	{"pull access denied", ErrImageNotFound},
}

var (
	notFoundSentinels = map[string]error{
		"container": ErrContainerNotFound,
		"network":   ErrNetworkNotFound,
		"image":     ErrImageNotFound,
	}
	conflictSentinels = map[string]error{
		"container": ErrContainerAlreadyExists,
		"network":   ErrNetworkAlreadyExists,
	}
)

// sentinelFor returns the sentinel that classifies an SDK error about an
// entity, or nil.
func sentinelFor(entity string, err error) error {
	msg := err.Error()
	for _, m := range daemonMessages {
		if strings.Contains(msg, m.text) {
			return m.err
		}
	}
	switch {
	case cerrdefs.IsNotFound(err):
		return notFoundSentinels[entity]
	case cerrdefs.IsConflict(err):
		return conflictSentinels[entity]
	}
	return nil
}

// classify wraps an SDK error. Unclassified errors get fallback as their
// cause, or keep err when fallback is nil.
func classify(op, entity, id string, err, fallback error) *DockerError {
	cause := sentinelFor(entity, err)
	if cause == nil {
		cause = fallback
	}
	if cause == nil {
		cause = err
	}
	return NewDockerError(op, entity, id, err.Error(), cause)
}
