package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AuthorID  uint      `gorm:"index;not null" json:"author_id"`
	Content   string    `gorm:"type:text" json:"content"`
	Likes     []uint    `gorm:"serializer:json" json:"likes"`
	Dislikes  []uint    `gorm:"serializer:json" json:"dislikes"`
	Version   int64     `gorm:"not null;default:0" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type PostAction string

const (
	PostLike      PostAction = "like"
	PostUnlike    PostAction = "unlike"
	PostDislike   PostAction = "dislike"
	PostUndislike PostAction = "undislike"
)

func ParsePostAction(raw string) (PostAction, error) {
	switch PostAction(strings.ToLower(strings.TrimSpace(raw))) {
	case PostLike:
		return PostLike, nil
	case PostUnlike:
		return PostUnlike, nil
	case PostDislike:
		return PostDislike, nil
	case PostUndislike:
		return PostUndislike, nil
	default:
		return "", fmt.Errorf("unknown post action %q", raw)
	}
}

func (p *Post) LikedBy(userID uint) bool    { return slices.Contains(p.Likes, userID) }
func (p *Post) DislikedBy(userID uint) bool { return slices.Contains(p.Dislikes, userID) }

// Apply moves the user's reaction to the state the action asks for. Liking
// clears a dislike and vice versa. It reports whether anything changed, so a
// repeated action leaves the post untouched.
func (p *Post) Apply(userID uint, action PostAction) bool {
	switch action {
	case PostLike:
		if p.LikedBy(userID) {
			return false
		}
		p.Dislikes = without(p.Dislikes, userID)
		p.Likes = append(p.Likes, userID)
		return true
	case PostUnlike:
		if !p.LikedBy(userID) {
			return false
		}
		p.Likes = without(p.Likes, userID)
		return true
	case PostDislike:
		if p.DislikedBy(userID) {
			return false
		}
		p.Likes = without(p.Likes, userID)
		p.Dislikes = append(p.Dislikes, userID)
		return true
	case PostUndislike:
		if !p.DislikedBy(userID) {
			return false
		}
		p.Dislikes = without(p.Dislikes, userID)
		return true
	default:
		return false
	}
}

func without(ids []uint, id uint) []uint {
	out := make([]uint, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
