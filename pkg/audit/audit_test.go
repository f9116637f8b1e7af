package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	name    string
	fail    bool
	entries []*Entry
}

func (s *stubBackend) Name() string { return s.name }

func (s *stubBackend) Write(_ context.Context, entry *Entry) error {
	if s.fail {
		return errors.New("backend unavailable")
	}
	s.entries = append(s.entries, entry)
	return nil
}

func TestLogSucceedsWhenAtLeastOneBackendSucceeds(t *testing.T) {
	ok := &stubBackend{name: "ok"}
	bad := &stubBackend{name: "bad", fail: true}

	m, err := New(ok, bad)
	require.NoError(t, err)

	err = m.Log(context.Background(), &Entry{Operation: "read", Path: "kv/data/foo"})
	require.NoError(t, err)
	assert.Len(t, ok.entries, 1)
}

func TestLogFailsClosedWhenAllBackendsFail(t *testing.T) {
	a := &stubBackend{name: "a", fail: true}
	b := &stubBackend{name: "b", fail: true}

	m, err := New(a, b)
	require.NoError(t, err)

	err = m.Log(context.Background(), &Entry{Operation: "write", Path: "kv/data/foo"})
	assert.Error(t, err)
}

func TestLogFailsClosedWithNoBackends(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	err = m.Log(context.Background(), &Entry{Operation: "read", Path: "kv/data/foo"})
	assert.Error(t, err)
}

func TestRedactIsDeterministicAndHidesRawValue(t *testing.T) {
	m, err := New(&stubBackend{name: "ok"})
	require.NoError(t, err)

	redacted := m.Redact("super-secret")
	assert.NotEqual(t, "super-secret", redacted)
	assert.Equal(t, redacted, m.Redact("super-secret"))
}

func TestRedactDiffersAcrossManagerInstances(t *testing.T) {
	m1, err := New(&stubBackend{name: "ok"})
	require.NoError(t, err)
	m2, err := New(&stubBackend{name: "ok"})
	require.NoError(t, err)

	assert.NotEqual(t, m1.Redact("super-secret"), m2.Redact("super-secret"))
}

func TestRedactedRequestHashesStringValuesOnly(t *testing.T) {
	m, err := New(&stubBackend{name: "ok"})
	require.NoError(t, err)

	out := m.RedactedRequest(map[string]any{
		"password": "hunter2",
		"attempts": 3,
	})

	assert.NotEqual(t, "hunter2", out["password"])
	assert.Equal(t, "int", out["attempts"])
}

func TestRedactedRequestNilInputReturnsNil(t *testing.T) {
	m, err := New(&stubBackend{name: "ok"})
	require.NoError(t, err)
	assert.Nil(t, m.RedactedRequest(nil))
}
