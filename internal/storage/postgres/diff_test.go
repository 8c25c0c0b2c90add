package postgres

import (
	"testing"
	"time"

	"github.com/UkralStul/content-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPost() *domain.Post {
	return &domain.Post{ID: "post-1", Title: "t", Content: "c", AuthorID: "author"}
}

func TestDiffChildren_NoChanges(t *testing.T) {
	before := newPost()
	at := time.Unix(100, 0).UTC()
	before.ToggleLike("u1", at)
	before.AppendComment(&domain.Comment{ID: "c1", AuthorID: "u1", Text: "hi"})

	d := diffChildren(before, before.Clone())
	assert.True(t, d.empty())
}

func TestDiffChildren_LikeToggles(t *testing.T) {
	at := time.Unix(100, 0).UTC()
	before := newPost()
	before.ToggleLike("u1", at)
	before.ToggleLike("u2", at)

	next := before.Clone()
	require.False(t, next.ToggleLike("u1", at))
	require.True(t, next.ToggleLike("u3", at))

	d := diffChildren(before, next)
	assert.Equal(t, []string{"u1"}, d.removedLikes)
	require.Len(t, d.addedLikes, 1)
	assert.Equal(t, "u3", d.addedLikes[0].UserID)
	assert.Equal(t, "post-1", d.addedLikes[0].PostID)
	assert.Empty(t, d.appendedComments)
	assert.Empty(t, d.droppedComments)
}

func TestDiffChildren_Comments(t *testing.T) {
	before := newPost()
	before.AppendComment(&domain.Comment{ID: "c1", AuthorID: "u1", Text: "first"})
	before.AppendComment(&domain.Comment{ID: "c2", AuthorID: "u2", Text: "second"})

	next := before.Clone()
	require.True(t, next.RemoveComment("c1"))
	next.AppendComment(&domain.Comment{ID: "c3", AuthorID: "u3", Text: "third"})

	d := diffChildren(before, next)
	assert.Equal(t, []string{"c1"}, d.droppedComments)
	require.Len(t, d.appendedComments, 1)
	assert.Equal(t, "c3", d.appendedComments[0].ID)
	assert.Equal(t, "post-1", d.appendedComments[0].PostID)
	assert.Equal(t, int64(3), d.appendedComments[0].Position, "position continues after the removed comment")
	assert.Empty(t, d.addedLikes)
	assert.Empty(t, d.removedLikes)
}
