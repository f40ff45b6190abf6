package server

import (
	"github.com/valyala/fastjson"
	"net/http"
	"sessionchat/internal/chat"
)

// chatRequest is the {"chat": ..., "user": ...} body shared by several endpoints
func chatRequest(v *fastjson.Value) (string, int64, error) {
	key, err := stringField(v, "chat", true)
	if err != nil {
		return "", 0, err
	}
	userID, err := idField(v, "user", "user")
	if err != nil {
		return "", 0, err
	}
	return key, userID, nil
}

// sendMessage handles HTTP requests on "/messages/add" endpoint
func (h *handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	var in chat.NewMessage
	err := h.decode(r, func(v *fastjson.Value) error {
		var err error
		if in.SenderID, err = idField(v, "sender", "user"); err != nil {
			return err
		}
		if in.RecipientID, err = optionalIDField(v, "recipient", "user"); err != nil {
			return err
		}
		if in.GroupID, err = optionalIDField(v, "group", "group"); err != nil {
			return err
		}
		in.Content, err = stringField(v, "text", true)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	m, err := h.svc.SendMessage(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.respond(w, http.StatusCreated, m)
}

// markChatSeen handles HTTP requests on "/messages/seen" endpoint
func (h *handler) markChatSeen(w http.ResponseWriter, r *http.Request) {
	var (
		key    string
		userID int64
	)
	err := h.decode(r, func(v *fastjson.Value) error {
		var err error
		key, userID, err = chatRequest(v)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	n, err := h.svc.MarkChatSeen(r.Context(), userID, key)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.respond(w, http.StatusOK, countPayload("seen", n))
}

// chatHistory handles HTTP requests on "/messages/get" endpoint
func (h *handler) chatHistory(w http.ResponseWriter, r *http.Request) {
	var (
		key    string
		userID int64
	)
	err := h.decode(r, func(v *fastjson.Value) error {
		var err error
		key, userID, err = chatRequest(v)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	messages, err := h.svc.ChatHistory(r.Context(), userID, key)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.respond(w, http.StatusOK, orEmpty(messages))
}

// unreadCount handles HTTP requests on "/messages/unread" endpoint
func (h *handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	var (
		key    string
		userID int64
	)
	err := h.decode(r, func(v *fastjson.Value) error {
		var err error
		key, userID, err = chatRequest(v)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	n, err := h.svc.UnreadCount(r.Context(), userID, key)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.respond(w, http.StatusOK, countPayload("unread", n))
}

// activeChats handles HTTP requests on "/chats/get" endpoint
func (h *handler) activeChats(w http.ResponseWriter, r *http.Request) {
	var userID int64
	err := h.decode(r, func(v *fastjson.Value) error {
		var err error
		userID, err = idField(v, "user", "user")
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	chats, err := h.svc.ActiveChats(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.respond(w, http.StatusOK, orEmpty(chats))
}

// setTyping handles HTTP requests on "/typing/set" endpoint
func (h *handler) setTyping(w http.ResponseWriter, r *http.Request) {
	var (
		key    string
		userID int64
		typing bool
	)
	err := h.decode(r, func(v *fastjson.Value) error {
		var err error
		if key, userID, err = chatRequest(v); err != nil {
			return err
		}
		typing, err = boolField(v, "typing", true)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.svc.SetTyping(r.Context(), userID, key, typing); err != nil {
		h.fail(w, r, err)
		return
	}

	h.respond(w, http.StatusOK, okPayload)
}

// typingIndicators handles HTTP requests on "/typing/get" endpoint
func (h *handler) typingIndicators(w http.ResponseWriter, r *http.Request) {
	var key string
	err := h.decode(r, func(v *fastjson.Value) error {
		var err error
		key, err = stringField(v, "chat", true)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	indicators, err := h.svc.TypingIndicators(r.Context(), key)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.respond(w, http.StatusOK, orEmpty(indicators))
}
