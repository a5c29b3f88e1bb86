package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sandeepkv93/social-realtime-backend/internal/http/response"
	"github.com/sandeepkv93/social-realtime-backend/internal/repository"
	"github.com/sandeepkv93/social-realtime-backend/internal/service"
)

// ChatHandler serves conversation history. Live traffic goes through the
// websocket gateway.
type ChatHandler struct {
	chat    *service.ChatService
	verbose bool
}

func NewChatHandler(chat *service.ChatService, verbose bool) *ChatHandler {
	return &ChatHandler{chat: chat, verbose: verbose}
}

func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		response.ServiceError(w, r, err, h.verbose)
		return
	}
	page, err := queryInt(r, "page", repository.DefaultPage)
	if err != nil {
		response.ServiceError(w, r, err, h.verbose)
		return
	}
	size, err := queryInt(r, "page_size", repository.DefaultPageSize)
	if err != nil {
		response.ServiceError(w, r, err, h.verbose)
		return
	}
	result, err := h.chat.ListMessages(r.Context(), p.UserID, chi.URLParam(r, "conversationId"), repository.PageRequest{Page: page, PageSize: size})
	if err != nil {
		response.ServiceError(w, r, err, h.verbose)
		return
	}
	response.JSON(w, r, http.StatusOK, result)
}
