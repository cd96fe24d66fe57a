package api

import (
	"context"

	"github.com/hashicorp/go-hclog"
	"github.com/heysubinoy/opus/internal/auth"
	"github.com/heysubinoy/opus/internal/command"
	"github.com/jmgilman/go/errors"
)

var (
	ErrUnauthenticated = errors.New(errors.CodeUnauthorized, "missing or invalid session token")
	ErrForbidden       = errors.New(errors.CodeForbidden, "permission denied")
	ErrNotLeader       = errors.New(errors.CodeUnavailable, "not leader")
)

// Cluster is the replication surface the API needs. It is nil on a
// standalone node.
type Cluster interface {
	IsLeader() bool
	Leader() string
	Join(id, addr string) error
}

// Service holds the transport-independent request handling shared by the
// gRPC and HTTP servers.
type Service struct {
	users      *auth.Users
	sessions   *auth.Sessions
	dispatcher *command.Dispatcher
	cluster    Cluster
	logger     hclog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCluster makes write commands require leadership.
func WithCluster(c Cluster) ServiceOption {
	return func(s *Service) { s.cluster = c }
}

// WithLogger sets the service logger.
func WithLogger(l hclog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService creates a Service.
func NewService(users *auth.Users, sessions *auth.Sessions, dispatcher *command.Dispatcher, opts ...ServiceOption) *Service {
	s := &Service{
		users:      users,
		sessions:   sessions,
		dispatcher: dispatcher,
		logger:     hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Keys reports the number of keys held by this node.
func (s *Service) Keys() int {
	return s.dispatcher.Size()
}

// Login authenticates a user and opens a session.
func (s *Service) Login(username, password string) (string, auth.Identity, error) {
	id, err := s.users.Authenticate(username, password)
	if err != nil {
		return "", auth.Identity{}, err
	}
	token := s.sessions.Create(id)
	s.logger.Info("login", "user", id.Username, "role", id.Role)
	return token, id, nil
}

// Register creates a standard user and opens a session for it.
func (s *Service) Register(username, password string) (string, auth.Identity, error) {
	id, err := s.users.Register(username, password, auth.RoleStandard)
	if err != nil {
		return "", auth.Identity{}, err
	}
	return s.sessions.Create(id), id, nil
}

// Execute runs args on behalf of the session identified by token.
func (s *Service) Execute(ctx context.Context, token string, args []string) (command.Reply, error) {
	id, ok := s.sessions.Lookup(token)
	if !ok {
		return command.Reply{}, ErrUnauthenticated
	}
	if len(args) == 0 {
		return command.Reply{}, errors.New(errors.CodeInvalidInput, "empty command")
	}

	// Unknown commands fall through so the dispatcher reports them.
	if spec, ok := command.Lookup(args[0]); ok {
		if !auth.HasPermission(id.Role, spec.Perm) {
			s.logger.Warn("permission denied", "user", id.Username, "role", id.Role, "command", spec.Name)
			return command.Reply{}, ErrForbidden
		}
		if spec.Mutates() && !s.IsLeader() {
			return command.Reply{}, ErrNotLeader
		}
	}

	reply, err := s.dispatcher.Dispatch(ctx, args)
	if err != nil {
		s.logger.Debug("command failed", "user", id.Username, "command", args[0], "error", err)
	}
	return reply, err
}

// Logout ends a session.
func (s *Service) Logout(token string) bool {
	return s.sessions.Revoke(token)
}

// IsLeader reports whether this node accepts writes.
func (s *Service) IsLeader() bool {
	return s.cluster == nil || s.cluster.IsLeader()
}

// Leader returns the current leader address, or "" if unknown or standalone.
func (s *Service) Leader() string {
	if s.cluster == nil {
		return ""
	}
	return s.cluster.Leader()
}

// Join adds a node to the cluster. Only admin sessions may change membership.
func (s *Service) Join(token, id, addr string) error {
	who, ok := s.sessions.Lookup(token)
	if !ok {
		return ErrUnauthenticated
	}
	if !auth.HasPermission(who.Role, auth.PermAdmin) {
		return ErrForbidden
	}
	if s.cluster == nil {
		return errors.New(errors.CodeInvalidConfig, "replication is not enabled")
	}
	if !s.cluster.IsLeader() {
		return ErrNotLeader
	}
	if err := s.cluster.Join(id, addr); err != nil {
		return err
	}
	s.logger.Info("node joined", "id", id, "addr", addr, "by", who.Username)
	return nil
}
