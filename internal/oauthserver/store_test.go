package oauthserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreCode_ReturnsUniqueCodes(t *testing.T) {
	s := NewStore(0)
	defer s.Stop()

	c1, err := s.StoreCode(CodeEntry{ClientID: "a"}, 0)
	require.NoError(t, err)
	c2, err := s.StoreCode(CodeEntry{ClientID: "a"}, 0)
	require.NoError(t, err)

	assert.NotEmpty(t, c1)
	assert.NotEqual(t, c1, c2)
}

func TestConsumeCode_SingleUse(t *testing.T) {
	s := NewStore(0)
	defer s.Stop()

	code, err := s.StoreCode(CodeEntry{ClientID: "a", Subject: "user-1"}, 0)
	require.NoError(t, err)

	entry, ok := s.ConsumeCode(code)
	require.True(t, ok)
	assert.Equal(t, "user-1", entry.Subject)

	_, ok = s.ConsumeCode(code)
	assert.False(t, ok)
}

func TestConsumeCode_ExpiredReturnsNone(t *testing.T) {
	s := NewStore(0)
	defer s.Stop()

	code, err := s.StoreCode(CodeEntry{ClientID: "a"}, time.Millisecond)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	_, ok := s.ConsumeCode(code)
	assert.False(t, ok)
}

func TestStoreRefresh_AndGet(t *testing.T) {
	s := NewStore(0)
	defer s.Stop()

	token, err := s.StoreRefresh(RefreshEntry{ClientID: "a", Subject: "user-1"}, 0)
	require.NoError(t, err)

	entry, ok := s.GetRefresh(token)
	require.True(t, ok)
	assert.Equal(t, "user-1", entry.Subject)
}

func TestGetRefresh_ExpiredRejected(t *testing.T) {
	s := NewStore(0)
	defer s.Stop()

	token, err := s.StoreRefresh(RefreshEntry{ClientID: "a"}, 1)
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)

	_, ok := s.GetRefresh(token)
	assert.False(t, ok)
}

func TestRevokeRefresh(t *testing.T) {
	s := NewStore(0)
	defer s.Stop()

	token, err := s.StoreRefresh(RefreshEntry{ClientID: "a"}, 0)
	require.NoError(t, err)

	assert.True(t, s.RevokeRefresh(token))
	assert.False(t, s.RevokeRefresh(token))

	_, ok := s.GetRefresh(token)
	assert.False(t, ok)
}

func TestStats_ReflectsTableSizes(t *testing.T) {
	s := NewStore(0)
	defer s.Stop()

	_, err := s.StoreCode(CodeEntry{}, 0)
	require.NoError(t, err)
	_, err = s.StoreRefresh(RefreshEntry{}, 0)
	require.NoError(t, err)

	stats := s.Stats()
	assert.Equal(t, 1, stats.Codes)
	assert.Equal(t, 1, stats.Refresh)
}

func TestClear_EmptiesBothTables(t *testing.T) {
	s := NewStore(0)
	defer s.Stop()

	_, err := s.StoreCode(CodeEntry{}, 0)
	require.NoError(t, err)
	_, err = s.StoreRefresh(RefreshEntry{}, 0)
	require.NoError(t, err)

	s.Clear()
	stats := s.Stats()
	assert.Equal(t, 0, stats.Codes)
	assert.Equal(t, 0, stats.Refresh)
}

func TestSweep_RemovesExpiredEntries(t *testing.T) {
	s := NewStore(2 * time.Millisecond)
	defer s.Stop()

	_, err := s.StoreCode(CodeEntry{}, time.Millisecond)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return s.Stats().Codes == 0
	}, 200*time.Millisecond, 2*time.Millisecond)
}

func TestStop_IsIdempotent(t *testing.T) {
	s := NewStore(time.Millisecond)
	assert.NotPanics(t, func() {
		s.Stop()
		s.Stop()
	})
}

func TestStop_SafeWhenSweepDisabled(t *testing.T) {
	s := NewStore(0)
	assert.NotPanics(t, func() {
		s.Stop()
	})
}
