package oauthclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStore_CreateAndConsume(t *testing.T) {
	s := NewSessionStore(0)
	defer s.Stop()

	state, err := s.Create("verifier-1", []string{"https://api.example.com"}, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, state)

	sess, ok := s.Consume(state)
	require.True(t, ok)
	assert.Equal(t, "verifier-1", sess.CodeVerifier)
	assert.Equal(t, []string{"https://api.example.com"}, sess.Resources)
}

func TestSessionStore_ConsumeIsSingleUse(t *testing.T) {
	s := NewSessionStore(0)
	defer s.Stop()

	state, err := s.Create("verifier-1", nil, 0)
	require.NoError(t, err)

	_, ok := s.Consume(state)
	require.True(t, ok)

	_, ok = s.Consume(state)
	assert.False(t, ok)
}

func TestSessionStore_UniqueStatesPerCall(t *testing.T) {
	s := NewSessionStore(0)
	defer s.Stop()

	s1, err := s.Create("v1", nil, 0)
	require.NoError(t, err)
	s2, err := s.Create("v1", nil, 0)
	require.NoError(t, err)

	assert.NotEqual(t, s1, s2)
}

func TestSessionStore_SweepRemovesExpired(t *testing.T) {
	s := NewSessionStore(2 * time.Millisecond)
	defer s.Stop()

	_, err := s.Create("v1", nil, time.Millisecond)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return s.Count() == 0
	}, 200*time.Millisecond, 2*time.Millisecond)
}

func TestSessionStore_Stop_IsIdempotent(t *testing.T) {
	s := NewSessionStore(time.Millisecond)
	assert.NotPanics(t, func() {
		s.Stop()
		s.Stop()
	})
}
