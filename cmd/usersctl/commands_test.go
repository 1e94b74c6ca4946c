package main

import (
	"bytes"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/usercrud/internal/db/memorystorage"
	"github.com/patric-chuzhbe/usercrud/internal/handlers"
	"github.com/patric-chuzhbe/usercrud/internal/response"
	"github.com/patric-chuzhbe/usercrud/internal/router"
)

var createdPattern = regexp.MustCompile(`User created: (\S+)`)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	db, err := memorystorage.New()
	require.NoError(t, err)

	server := httptest.NewServer(router.New(handlers.New(db, response.NewFormatter(nil))))
	t.Cleanup(server.Close)

	return server
}

func run(t *testing.T, serverURL string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCommand(&out)
	cmd.SetArgs(append([]string{"--api", serverURL}, args...))

	err := cmd.Execute()

	return out.String(), err
}

func TestCommands(t *testing.T) {
	server := newTestServer(t)

	out, err := run(t, server.URL, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No users yet.")

	out, err = run(t, server.URL, "create", "--name", "Ann", "--email", "a@x.com", "--city", "Paris", "--country", "France")
	require.NoError(t, err)
	match := createdPattern.FindStringSubmatch(out)
	require.Len(t, match, 2)
	id := match[1]
	assert.Contains(t, out, "a@x.com", "the list is printed after a mutation")

	out, err = run(t, server.URL, "update", id, "--name", "Ann Marie", "--email", "am@x.com", "--city", "Lyon", "--country", "France")
	require.NoError(t, err)
	assert.Contains(t, out, "User updated")
	assert.Contains(t, out, "Ann Marie")

	out, err = run(t, server.URL, "get", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Lyon")

	out, err = run(t, server.URL, "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "User deleted")
	assert.Contains(t, out, "No users yet.")

	_, err = run(t, server.URL, "get", id)
	assert.EqualError(t, err, "User not found")
}

func TestCreateValidatesBeforeSending(t *testing.T) {
	server := newTestServer(t)

	_, err := run(t, server.URL, "create", "--name", "A", "--email", "nope", "--city", "Paris", "--country", "France")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Name must be at least 2 characters")
	assert.Contains(t, err.Error(), "Please enter a valid email address")

	out, err := run(t, server.URL, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No users yet.")
}
