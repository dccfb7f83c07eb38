package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestRepo(t *testing.T) *Repo {
	t.Helper()
	db, err := Open(":memory:", false)
	require.NoError(t, err)
	return NewRepo(db)
}

func TestUpsertMatchCreatesAndUpdates(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertMatch(ctx, 1, 2, 81, "they complement each other"))

	matches, err := repo.Matches(ctx)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 81, matches[0].Score)

	// A rerun over the same pair refreshes the row.
	require.NoError(t, repo.UpsertMatch(ctx, 1, 2, 90, "an even better saju read"))

	matches, err = repo.Matches(ctx)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 90, matches[0].Score)
	assert.Equal(t, "an even better saju read", matches[0].Reason)
	assert.Equal(t, uint64(1), matches[0].UserLow)
	assert.Equal(t, uint64(2), matches[0].UserHigh)
}

func TestUpsertMatchRejectsNonCanonicalPairs(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	assert.Error(t, repo.UpsertMatch(ctx, 2, 1, 80, "reversed"))
	assert.Error(t, repo.UpsertMatch(ctx, 3, 3, 80, "self"))

	matches, err := repo.Matches(ctx)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFetchUsersByMatchedFlag(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	fresh := &User{Name: "민준", MBTI: "ENFP", Gender: GenderMale}
	settled := &User{Name: "서연", MBTI: "INFP", Gender: GenderFemale}
	require.NoError(t, repo.CreateUser(ctx, fresh))
	require.NoError(t, repo.CreateUser(ctx, settled))
	require.NoError(t, repo.SetMatched(ctx, settled.ID))

	unmatched, err := repo.FetchUsers(ctx, false)
	require.NoError(t, err)
	require.Len(t, unmatched, 1)
	assert.Equal(t, fresh.ID, unmatched[0].ID)

	matched, err := repo.FetchUsers(ctx, true)
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, settled.ID, matched[0].ID)
}

func TestFetchUsersOrderedByID(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	for _, name := range []string{"지호", "하은", "도윤"} {
		require.NoError(t, repo.CreateUser(ctx, &User{Name: name, MBTI: "INTJ", Gender: GenderMale}))
	}

	users, err := repo.FetchUsers(ctx, false)
	require.NoError(t, err)
	require.Len(t, users, 3)
	for i := 1; i < len(users); i++ {
		assert.Less(t, users[i-1].ID, users[i].ID)
	}
}

func TestSetMatchedIsIdempotent(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	user := &User{Name: "유진", MBTI: "ISFJ", Gender: GenderFemale}
	require.NoError(t, repo.CreateUser(ctx, user))

	require.NoError(t, repo.SetMatched(ctx, user.ID))
	require.NoError(t, repo.SetMatched(ctx, user.ID))

	matched, err := repo.FetchUsers(ctx, true)
	require.NoError(t, err)
	require.Len(t, matched, 1)
}

func TestMatchesOrderedByScore(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertMatch(ctx, 1, 2, 72, "fine"))
	require.NoError(t, repo.UpsertMatch(ctx, 3, 4, 95, "great"))
	require.NoError(t, repo.UpsertMatch(ctx, 5, 6, 84, "good"))

	matches, err := repo.Matches(ctx)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, 95, matches[0].Score)
	assert.Equal(t, 84, matches[1].Score)
	assert.Equal(t, 72, matches[2].Score)
}

func TestSubscriptionLifecycle(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	sub := PushSubscription{UserID: 1, Endpoint: "https://push.example/abc", P256dh: "key", Auth: "auth"}
	require.NoError(t, repo.db.Create(&sub).Error)

	subs, err := repo.Subscriptions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, subs, 1)

	require.NoError(t, repo.DeleteSubscription(ctx, subs[0].ID))

	subs, err = repo.Subscriptions(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, subs)
}
