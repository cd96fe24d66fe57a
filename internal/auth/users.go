// Package auth resolves client identities against a YAML credentials file
// and decides which command classes a role may issue.
package auth

import (
	"bytes"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/jmgilman/go/errors"
	"gopkg.in/yaml.v3"
)

// MinPasswordLength is the shortest password Register accepts.
const MinPasswordLength = 8

// Roles known to HasPermission.
const (
	RoleAdmin    = "admin"
	RoleStandard = "standard"
)

var (
	ErrUserNotFound       = errors.New(errors.CodeNotFound, "user not found")
	ErrUserExists         = errors.New(errors.CodeAlreadyExists, "user already exists")
	ErrInvalidCredentials = errors.New(errors.CodeUnauthorized, "invalid credentials")
	ErrWeakPassword       = errors.Newf(errors.CodeInvalidInput, "password must be at least %d characters", MinPasswordLength)
	ErrInvalidUsername    = errors.New(errors.CodeInvalidInput, "username must not be empty or contain whitespace")
)

// Identity is a successfully authenticated user.
type Identity struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// User is one entry of the credentials file.
type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

// Users reads and updates a credentials file of the form
//
//	users:
//	  - username: "alice"
//	    password: "<hash>"
//	    role: "standard"
//
// Other top-level sections of the file are preserved when it is rewritten.
type Users struct {
	path   string
	mu     sync.Mutex
	logger hclog.Logger
}

// NewUsers returns a Users backed by the file at path. The file need not exist.
func NewUsers(path string, logger hclog.Logger) *Users {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Users{path: path, logger: logger}
}

// Path returns the credentials file location.
func (u *Users) Path() string {
	return u.path
}

// Authenticate checks username and password and returns the resolved identity.
func (u *Users) Authenticate(username, password string) (Identity, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	doc, err := u.read()
	if err != nil {
		return Identity{}, err
	}
	users, err := decodeUsers(doc)
	if err != nil {
		return Identity{}, err
	}

	for _, user := range users {
		if user.Username != username {
			continue
		}
		if !VerifyPassword(password, user.Password) {
			u.logger.Warn("authentication failed", "user", username)
			return Identity{}, ErrInvalidCredentials
		}
		return Identity{Username: user.Username, Role: user.Role}, nil
	}
	return Identity{}, ErrUserNotFound
}

// Register appends a new user to the credentials file, creating the file
// if it does not exist. An empty role registers a standard user.
func (u *Users) Register(username, password, role string) (Identity, error) {
	if username == "" || strings.ContainsAny(username, " \t\r\n") {
		return Identity{}, ErrInvalidUsername
	}
	if len(password) < MinPasswordLength {
		return Identity{}, ErrWeakPassword
	}
	if role == "" {
		role = RoleStandard
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	doc, err := u.read()
	if err != nil {
		return Identity{}, err
	}
	users, err := decodeUsers(doc)
	if err != nil {
		return Identity{}, err
	}
	for _, user := range users {
		if user.Username == username {
			return Identity{}, ErrUserExists
		}
	}

	hash, err := HashPassword(password)
	if err != nil {
		return Identity{}, err
	}

	var entry yaml.Node
	if err := entry.Encode(User{Username: username, Password: hash, Role: role}); err != nil {
		return Identity{}, errors.Wrap(err, errors.CodeInternal, "failed to encode user")
	}
	for i := 1; i < len(entry.Content); i += 2 {
		entry.Content[i].Style = yaml.DoubleQuotedStyle
	}
	seq := usersSequence(doc, true)
	seq.Content = append(seq.Content, &entry)

	if err := u.write(doc); err != nil {
		return Identity{}, err
	}
	u.logger.Info("registered user", "user", username, "role", role)
	return Identity{Username: username, Role: role}, nil
}

// read parses the credentials file. A missing or empty file yields an empty
// document.
func (u *Users) read() (*yaml.Node, error) {
	data, err := os.ReadFile(u.path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return emptyDocument(), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeInternal, "failed to read credentials file %s", u.path)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, errors.CodeInvalidConfig, "failed to parse credentials file %s", u.path)
	}
	if doc.Kind == 0 {
		return emptyDocument(), nil
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, errors.Newf(errors.CodeInvalidConfig, "credentials file %s must contain a mapping", u.path)
	}
	return &doc, nil
}

func (u *Users) write(doc *yaml.Node) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to encode credentials")
	}
	if err := enc.Close(); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to encode credentials")
	}

	if dir := filepath.Dir(u.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, errors.CodeInternal, "failed to create credentials directory")
		}
	}
	tmp := u.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return errors.Wrapf(err, errors.CodeInternal, "failed to write credentials file %s", u.path)
	}
	if err := os.Rename(tmp, u.path); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, errors.CodeInternal, "failed to write credentials file %s", u.path)
	}
	return nil
}

func emptyDocument() *yaml.Node {
	return &yaml.Node{
		Kind:    yaml.DocumentNode,
		Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}},
	}
}

// usersSequence returns the sequence node under the top-level "users" key,
// adding an empty one when create is set.
func usersSequence(doc *yaml.Node, create bool) *yaml.Node {
	root := doc.Content[0]
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == "users" {
			val := root.Content[i+1]
			if val.Kind != yaml.SequenceNode && create {
				// "users:" with no entries parses as a null scalar.
				*val = yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
			}
			return val
		}
	}
	if !create {
		return nil
	}
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	root.Content = append(root.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "users"},
		seq,
	)
	return seq
}

func decodeUsers(doc *yaml.Node) ([]User, error) {
	seq := usersSequence(doc, false)
	if seq == nil || seq.Kind != yaml.SequenceNode {
		return nil, nil
	}
	var users []User
	if err := seq.Decode(&users); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "malformed users section")
	}
	return users, nil
}
