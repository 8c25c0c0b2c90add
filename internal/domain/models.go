package domain

import "time"

// Role определяет уровень прав пользователя.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleUser   Role = "user"
)

// Valid сообщает, является ли роль одной из известных.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleUser:
		return true
	}
	return false
}

// UnknownAuthor подставляется вместо имени удалённого пользователя.
const UnknownAuthor = "unknown author"

// User представляет зарегистрированного пользователя.
type User struct {
	ID           string    `json:"id" gorm:"type:uuid;primary_key"`
	Username     string    `json:"username" gorm:"type:varchar(255);not null;uniqueIndex"`
	PasswordHash string    `json:"-" gorm:"type:varchar(255);not null"`
	Role         Role      `json:"role" gorm:"type:varchar(16);not null;default:user"`
	CreatedAt    time.Time `json:"createdAt" gorm:"not null"`
	UpdatedAt    time.Time `json:"updatedAt" gorm:"not null"`
}

// Post представляет пост в системе.
// Комментарии и лайки принадлежат посту и удаляются вместе с ним.
type Post struct {
	ID        string     `json:"id" gorm:"type:uuid;primary_key"`
	Title     string     `json:"title" gorm:"type:varchar(255);not null"`
	Content   string     `json:"content" gorm:"type:text;not null"`
	Image     string     `json:"image,omitempty" gorm:"type:varchar(255)"`
	AuthorID  string     `json:"authorId" gorm:"type:uuid;not null;index"`
	CreatedAt time.Time  `json:"createdAt" gorm:"not null"`
	UpdatedAt time.Time  `json:"updatedAt" gorm:"not null"`
	Comments  []*Comment `json:"-" gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE"`
	Likes     []*Like    `json:"-" gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE"`
}

// Comment представляет комментарий к посту.
// Position задаёт порядок вставки внутри поста.
type Comment struct {
	ID        string    `json:"id" gorm:"type:uuid;primary_key"`
	PostID    string    `json:"postId" gorm:"type:uuid;not null;index"`
	AuthorID  string    `json:"authorId" gorm:"type:uuid;not null"`
	Text      string    `json:"text" gorm:"type:text;not null"`
	Position  int64     `json:"-" gorm:"not null"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null"`
}

// Like - отметка пользователя на посте. Пара (PostID, UserID) уникальна.
type Like struct {
	PostID    string    `json:"postId" gorm:"type:uuid;primaryKey"`
	UserID    string    `json:"userId" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null"`
}

// Clone возвращает глубокую копию поста вместе с комментариями и лайками.
func (p *Post) Clone() *Post {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Comments = make([]*Comment, len(p.Comments))
	for i, c := range p.Comments {
		cc := *c
		cp.Comments[i] = &cc
	}
	cp.Likes = make([]*Like, len(p.Likes))
	for i, l := range p.Likes {
		lc := *l
		cp.Likes[i] = &lc
	}
	return &cp
}

// LikeCount возвращает количество лайков.
func (p *Post) LikeCount() int { return len(p.Likes) }

// LikedBy сообщает, лайкнул ли пользователь пост.
func (p *Post) LikedBy(userID string) bool {
	return p.likeIndex(userID) >= 0
}

func (p *Post) likeIndex(userID string) int {
	if userID == "" {
		return -1
	}
	for i, l := range p.Likes {
		if l.UserID == userID {
			return i
		}
	}
	return -1
}

// ToggleLike переключает лайк пользователя: убирает, если он есть, иначе добавляет.
// Возвращает новое состояние.
func (p *Post) ToggleLike(userID string, at time.Time) bool {
	if i := p.likeIndex(userID); i >= 0 {
		p.Likes = append(p.Likes[:i:i], p.Likes[i+1:]...)
		return false
	}
	p.Likes = append(p.Likes, &Like{PostID: p.ID, UserID: userID, CreatedAt: at})
	return true
}

// AppendComment добавляет комментарий в конец треда.
func (p *Post) AppendComment(c *Comment) {
	var next int64 = 1
	if n := len(p.Comments); n > 0 {
		next = p.Comments[n-1].Position + 1
	}
	c.PostID = p.ID
	c.Position = next
	p.Comments = append(p.Comments, c)
}

// FindComment ищет комментарий по id.
func (p *Post) FindComment(id string) (*Comment, bool) {
	for _, c := range p.Comments {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

// RemoveComment удаляет комментарий, сохраняя порядок остальных.
func (p *Post) RemoveComment(id string) bool {
	for i, c := range p.Comments {
		if c.ID == id {
			p.Comments = append(p.Comments[:i:i], p.Comments[i+1:]...)
			return true
		}
	}
	return false
}
