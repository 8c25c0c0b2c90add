package observer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommentObserver_PublishToPostSubscribers(t *testing.T) {
	o := NewCommentObserver()

	events, cancel := o.Subscribe("post-1", 4)
	defer cancel()
	other, cancelOther := o.Subscribe("post-2", 4)
	defer cancelOther()

	o.Publish(CommentEvent{Type: CommentAdded, PostID: "post-1", CommentID: "c1"})

	ev := <-events
	assert.Equal(t, "c1", ev.CommentID)
	assert.Equal(t, CommentAdded, ev.Type)
	assert.Len(t, other, 0)
}

func TestCommentObserver_SlowSubscriberDoesNotBlock(t *testing.T) {
	o := NewCommentObserver()
	events, cancel := o.Subscribe("post-1", 1)
	defer cancel()

	o.Publish(CommentEvent{PostID: "post-1", CommentID: "c1"})
	o.Publish(CommentEvent{PostID: "post-1", CommentID: "c2"})

	require.Len(t, events, 1)
	assert.Equal(t, "c1", (<-events).CommentID)
}

func TestCommentObserver_CancelRemovesSubscriber(t *testing.T) {
	o := NewCommentObserver()
	events, cancel := o.Subscribe("post-1", 1)
	assert.Equal(t, 1, o.Subscribers("post-1"))

	cancel()
	cancel()
	assert.Equal(t, 0, o.Subscribers("post-1"))

	_, open := <-events
	assert.False(t, open)

	// После отписки публикация не паникует
	o.Publish(CommentEvent{PostID: "post-1"})
}
