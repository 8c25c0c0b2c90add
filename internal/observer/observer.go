package observer

import (
	"sync"

	"github.com/google/uuid"
)

// EventType - тип события в треде комментариев.
type EventType string

const (
	CommentAdded   EventType = "comment.added"
	CommentDeleted EventType = "comment.deleted"
)

// CommentAuthor - автор комментария в событии.
type CommentAuthor struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// CommentEvent - изменение треда одного поста.
type CommentEvent struct {
	Type      EventType      `json:"type"`
	PostID    string         `json:"postId"`
	CommentID string         `json:"commentId"`
	Text      string         `json:"text,omitempty"`
	Author    *CommentAuthor `json:"author,omitempty"`
}

// CommentObserver хранит каналы для подписчиков на комментарии.
type CommentObserver struct {
	mu sync.RWMutex
	//          map[postID] map[subscriberID] channel
	subs map[string]map[string]chan CommentEvent
}

// NewCommentObserver - конструктор для нашего наблюдателя.
func NewCommentObserver() *CommentObserver {
	return &CommentObserver{
		subs: make(map[string]map[string]chan CommentEvent),
	}
}

// Subscribe регистрирует подписчика на события поста.
// Вызывающий обязан вызвать cancel, когда клиент отключился.
func (o *CommentObserver) Subscribe(postID string, buffer int) (<-chan CommentEvent, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan CommentEvent, buffer)
	subID := uuid.NewString()

	o.mu.Lock()
	if o.subs[postID] == nil {
		o.subs[postID] = make(map[string]chan CommentEvent)
	}
	o.subs[postID][subID] = ch
	o.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			o.mu.Lock()
			if postSubs, ok := o.subs[postID]; ok {
				delete(postSubs, subID)
				if len(postSubs) == 0 {
					delete(o.subs, postID)
				}
			}
			o.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish рассылает событие без блокировки: медленный подписчик событие пропускает.
func (o *CommentObserver) Publish(ev CommentEvent) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	for _, ch := range o.subs[ev.PostID] {
		select {
		case ch <- ev:
		default:
			// Клиент не успевает читать
		}
	}
}

// Subscribers возвращает число подписчиков поста.
func (o *CommentObserver) Subscribers(postID string) int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.subs[postID])
}
