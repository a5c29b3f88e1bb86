package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sandeepkv93/social-realtime-backend/internal/domain"
	"github.com/sandeepkv93/social-realtime-backend/internal/repository"
)

type PostReactionResult struct {
	PostID       uint              `json:"post_id"`
	AuthorID     uint              `json:"author_id"`
	UserID       uint              `json:"user_id"`
	Action       domain.PostAction `json:"action"`
	Changed      bool              `json:"changed"`
	Liked        bool              `json:"liked"`
	Disliked     bool              `json:"disliked"`
	LikeCount    int               `json:"like_count"`
	DislikeCount int               `json:"dislike_count"`
}

// PostReactionService applies like and dislike actions as desired-state
// writes, so repeating an action never changes the counts twice.
type PostReactionService struct {
	posts repository.PostRepository
}

func NewPostReactionService(posts repository.PostRepository) *PostReactionService {
	return &PostReactionService{posts: posts}
}

func (s *PostReactionService) Apply(ctx context.Context, postID, userID uint, action domain.PostAction) (PostReactionResult, error) {
	for attempt := 0; attempt < maxSessionWriteAttempts; attempt++ {
		post, err := s.posts.FindByID(ctx, postID)
		if err != nil {
			return PostReactionResult{}, err
		}
		if !post.Apply(userID, action) {
			return reactionResult(post, userID, action, false), nil
		}
		err = s.posts.SaveReactions(ctx, post)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return PostReactionResult{}, err
		}
		return reactionResult(post, userID, action, true), nil
	}
	return PostReactionResult{}, fmt.Errorf("post %d: %w", postID, ErrConflict)
}

// State reports the user's current reaction and the post's counts.
func (s *PostReactionService) State(ctx context.Context, postID, userID uint) (PostReactionResult, error) {
	post, err := s.posts.FindByID(ctx, postID)
	if err != nil {
		return PostReactionResult{}, err
	}
	return reactionResult(post, userID, "", false), nil
}

func reactionResult(p *domain.Post, userID uint, action domain.PostAction, changed bool) PostReactionResult {
	return PostReactionResult{
		PostID:       p.ID,
		AuthorID:     p.AuthorID,
		UserID:       userID,
		Action:       action,
		Changed:      changed,
		Liked:        p.LikedBy(userID),
		Disliked:     p.DislikedBy(userID),
		LikeCount:    len(p.Likes),
		DislikeCount: len(p.Dislikes),
	}
}
