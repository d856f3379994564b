package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travelorch/internal/models"
)

func TestCreateAndGetRoundTrips(t *testing.T) {
	store := New(time.Hour)
	sess := store.Create()
	require.NotEmpty(t, sess.ID)

	got := store.Get(sess.ID)
	require.NotNil(t, got)
	assert.Equal(t, sess.ID, got.ID)
}

func TestGetReturnsNilForUnknownSession(t *testing.T) {
	store := New(time.Hour)
	assert.Nil(t, store.Get("does-not-exist"))
}

func TestGetExpiresStaleSessions(t *testing.T) {
	store := New(time.Millisecond)
	sess := store.Create()
	time.Sleep(5 * time.Millisecond)
	assert.Nil(t, store.Get(sess.ID))
}

func TestUpdatePreferencesNeverOverwritesWithEmpty(t *testing.T) {
	store := New(time.Hour)
	sess := store.Create()
	days := 3
	store.UpdatePreferences(sess, models.Preferences{City: "Jaipur", DurationDays: &days})
	store.UpdatePreferences(sess, models.Preferences{}) // empty update should not clear anything

	assert.Equal(t, "Jaipur", sess.Preferences.City)
	require.NotNil(t, sess.Preferences.DurationDays)
	assert.Equal(t, 3, *sess.Preferences.DurationDays)
}

func TestUpdatePreferencesUnionsInterests(t *testing.T) {
	store := New(time.Hour)
	sess := store.Create()
	store.UpdatePreferences(sess, models.Preferences{Interests: []string{"food", "history"}})
	store.UpdatePreferences(sess, models.Preferences{Interests: []string{"history", "nature"}})

	assert.Equal(t, []string{"food", "history", "nature"}, sess.Preferences.Interests)
}

func TestRecordClarifyingQuestionAndAlreadyAsked(t *testing.T) {
	store := New(time.Hour)
	sess := store.Create()
	assert.False(t, AlreadyAsked(sess, "city"))

	store.RecordClarifyingQuestion(sess, "city")
	assert.True(t, AlreadyAsked(sess, "city"))
	assert.Equal(t, 1, sess.ClarificationCount)
}

func TestResetClearsStateKeepsIdentity(t *testing.T) {
	store := New(time.Hour)
	sess := store.Create()
	sess.Preferences.City = "Jaipur"
	sess.Itinerary = &models.Itinerary{City: "Jaipur"}
	store.RecordClarifyingQuestion(sess, "city")

	id := sess.ID
	store.Reset(sess)

	assert.Equal(t, id, sess.ID)
	assert.Empty(t, sess.Preferences.City)
	assert.Nil(t, sess.Itinerary)
	assert.Zero(t, sess.ClarificationCount)
}

func TestLockSerializesAccessToSameSession(t *testing.T) {
	store := New(time.Hour)
	sess := store.Create()

	unlock := store.Lock(sess.ID)
	done := make(chan struct{})
	go func() {
		unlock2 := store.Lock(sess.ID)
		unlock2()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second lock should not have acquired while first is held")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	<-done
}

func TestCleanupExpiredRemovesStaleSessions(t *testing.T) {
	store := New(time.Millisecond)
	sess := store.Create()
	time.Sleep(5 * time.Millisecond)
	store.CleanupExpired()

	store.mu.RLock()
	_, ok := store.sessions[sess.ID]
	store.mu.RUnlock()
	assert.False(t, ok)
}
