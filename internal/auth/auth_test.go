package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestUsers_RegisterCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "users.yaml")
	u := NewUsers(path, nil)

	id, err := u.Register("alice", "password1", "")
	require.NoError(t, err)
	assert.Equal(t, Identity{Username: "alice", Role: RoleStandard}, id)
	assert.FileExists(t, path)

	got, err := u.Authenticate("alice", "password1")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = u.Authenticate("alice", "wrong-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = u.Authenticate("bob", "password1")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestUsers_RegisterValidation(t *testing.T) {
	u := NewUsers(filepath.Join(t.TempDir(), "users.yaml"), nil)

	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{"short password", "alice", "short", ErrWeakPassword},
		{"seven characters", "alice", "1234567", ErrWeakPassword},
		{"empty username", "", "password1", ErrInvalidUsername},
		{"username with space", "al ice", "password1", ErrInvalidUsername},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := u.Register(tt.username, tt.password, "")
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
		})
	}

	_, err := u.Register("alice", "12345678", "")
	require.NoError(t, err)
	_, err = u.Register("alice", "another-pass", "")
	require.ErrorIs(t, err, ErrUserExists)
}

func TestUsers_PreservesOtherSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	initial := `server:
  port: 5432
users:
  - username: "root"
    password: "` + legacyHash("rootpass1") + `"
    role: "admin"
`
	require.NoError(t, os.WriteFile(path, []byte(initial), 0o600))

	u := NewUsers(path, nil)
	_, err := u.Register("carol", "carolpass", "")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var parsed struct {
		Server struct {
			Port int `yaml:"port"`
		} `yaml:"server"`
		Users []User `yaml:"users"`
	}
	require.NoError(t, yaml.Unmarshal(data, &parsed))
	assert.Equal(t, 5432, parsed.Server.Port)
	require.Len(t, parsed.Users, 2)
	assert.Equal(t, "root", parsed.Users[0].Username)
	assert.Equal(t, "carol", parsed.Users[1].Username)

	// The legacy digest still verifies after the rewrite.
	id, err := u.Authenticate("root", "rootpass1")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, id.Role)
}

func TestUsers_EmptyUsersSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, os.WriteFile(path, []byte("users:\n"), 0o600))

	u := NewUsers(path, nil)
	_, err := u.Authenticate("alice", "password1")
	require.ErrorIs(t, err, ErrUserNotFound)

	_, err = u.Register("alice", "password1", RoleAdmin)
	require.NoError(t, err)
	id, err := u.Authenticate("alice", "password1")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, id.Role)
}

func TestUsers_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- just\n- a list\n"), 0o600))

	_, err := NewUsers(path, nil).Authenticate("alice", "password1")
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))
}

func TestVerifyPassword(t *testing.T) {
	hash, err := HashPassword("s3cretpass")
	require.NoError(t, err)
	assert.True(t, VerifyPassword("s3cretpass", hash))
	assert.False(t, VerifyPassword("s3cretpasS", hash))

	legacy := legacyHash("s3cretpass")
	assert.True(t, VerifyPassword("s3cretpass", legacy))
	assert.False(t, VerifyPassword("other", legacy))
	assert.False(t, VerifyPassword("s3cretpass", "not-a-hash"))
}

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role, perm string
		want       bool
	}{
		{RoleAdmin, PermRead, true},
		{RoleAdmin, PermWrite, true},
		{RoleAdmin, PermAdmin, true},
		{RoleStandard, PermRead, true},
		{RoleStandard, PermWrite, true},
		{RoleStandard, PermAdmin, false},
		{"guest", PermRead, false},
		{"", PermRead, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HasPermission(tt.role, tt.perm), "%s/%s", tt.role, tt.perm)
	}
}

func TestSessions(t *testing.T) {
	s := NewSessions()
	id := Identity{Username: "alice", Role: RoleStandard}

	token := s.Create(id)
	require.NotEmpty(t, token)
	assert.NotEqual(t, token, s.Create(id))
	assert.Equal(t, 2, s.Len())

	got, ok := s.Lookup(token)
	require.True(t, ok)
	assert.Equal(t, id, got)

	assert.True(t, s.Revoke(token))
	assert.False(t, s.Revoke(token))
	_, ok = s.Lookup(token)
	assert.False(t, ok)
}
