package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sandeepkv93/social-realtime-backend/internal/domain"
)

func TestPageRequestNormalize(t *testing.T) {
	tests := []struct {
		in   PageRequest
		want PageRequest
	}{
		{in: PageRequest{}, want: PageRequest{Page: 1, PageSize: DefaultPageSize}},
		{in: PageRequest{Page: -3, PageSize: 5}, want: PageRequest{Page: 1, PageSize: 5}},
		{in: PageRequest{Page: 4, PageSize: MaxPageSize * 3}, want: PageRequest{Page: 4, PageSize: MaxPageSize}},
	}
	for _, tc := range tests {
		if got := tc.in.normalize(); got != tc.want {
			t.Fatalf("normalize(%+v)=%+v want %+v", tc.in, got, tc.want)
		}
	}
}

func TestMessageHistoryPagesNewestFirst(t *testing.T) {
	db := newRepositoryDBForTest(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		m := &domain.Message{
			ID:             uuid.NewString(),
			ConversationID: "conv-a",
			SenderID:       1,
			ReceiverID:     2,
			Content:        string(rune('a' + i)),
			Type:           domain.MessageText,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Create(ctx, m); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	deleted := &domain.Message{ID: uuid.NewString(), ConversationID: "conv-a", SenderID: 2, ReceiverID: 1, Content: "gone", Type: domain.MessageText, IsDeleted: true, CreatedAt: base.Add(time.Hour)}
	other := &domain.Message{ID: uuid.NewString(), ConversationID: "conv-b", SenderID: 3, ReceiverID: 1, Content: "elsewhere", Type: domain.MessageText, CreatedAt: base}
	for _, m := range []*domain.Message{deleted, other} {
		if err := repo.Create(ctx, m); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	first, err := repo.ListPage(ctx, "conv-a", PageRequest{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if first.Total != 5 || first.TotalPages != 3 || !first.HasNext() {
		t.Fatalf("unexpected totals: %+v", first)
	}
	if len(first.Items) != 2 || first.Items[0].Content != "e" || first.Items[1].Content != "d" {
		t.Fatalf("expected newest first, got %+v", first.Items)
	}

	last, err := repo.ListPage(ctx, "conv-a", PageRequest{Page: 3, PageSize: 2})
	if err != nil {
		t.Fatalf("page 3: %v", err)
	}
	if len(last.Items) != 1 || last.Items[0].Content != "a" || last.HasNext() {
		t.Fatalf("unexpected last page: %+v", last)
	}

	empty, err := repo.ListPage(ctx, "conv-missing", PageRequest{})
	if err != nil {
		t.Fatalf("empty: %v", err)
	}
	if empty.Items == nil || len(empty.Items) != 0 || empty.TotalPages != 0 || empty.PageSize != DefaultPageSize {
		t.Fatalf("expected an empty non-nil page, got %+v", empty)
	}
}

func FuzzPageCount(f *testing.F) {
	f.Add(int64(0), 10)
	f.Add(int64(21), 20)
	f.Add(int64(1<<62), 1)
	f.Add(int64(1<<63-1), 2)

	f.Fuzz(func(t *testing.T, total int64, pageSize int) {
		got := pageCount(total, pageSize)
		if total <= 0 || pageSize <= 0 {
			if got != 0 {
				t.Fatalf("pageCount(%d, %d)=%d want 0", total, pageSize, got)
			}
			return
		}
		if got < 1 {
			t.Fatalf("pageCount(%d, %d)=%d want >= 1", total, pageSize, got)
		}
		size := int64(pageSize)
		if int64(got) < total/size || int64(got) > total/size+1 || int64(got) > total {
			t.Fatalf("pageCount(%d, %d)=%d is not the ceiling", total, pageSize, got)
		}
		if total%size == 0 && int64(got) != total/size {
			t.Fatalf("pageCount(%d, %d)=%d want exact division", total, pageSize, got)
		}
	})
}
