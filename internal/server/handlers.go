package server

import (
	"encoding/json"
	"errors"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"
	"io"
	"net/http"
	"sessionchat/internal/chat"
	"sessionchat/internal/storage"
	"sessionchat/internal/storage/zapadapter"
	"strconv"
)

type handler struct {
	logger  *zap.SugaredLogger
	svc     *chat.Service
	parsers fastjson.ParserPool
}

// badRequest is a malformed request detected before calling the service
type badRequest string

func (e badRequest) Error() string { return string(e) }

// decode parses request body and passes it to fn. Values must not be retained after fn returns,
// the parser goes back to the pool.
func (h *handler) decode(r *http.Request, fn func(v *fastjson.Value) error) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return badRequest("Can not read request body")
	}

	parser := h.parsers.Get()
	defer h.parsers.Put(parser)

	v, err := parser.ParseBytes(body)
	if err != nil {
		return badRequest("Malformed JSON")
	}
	if v.Type() != fastjson.TypeObject {
		return badRequest("Request body must be a JSON object")
	}

	return fn(v)
}

func idField(v *fastjson.Value, name, entity string) (int64, error) {
	if !v.Exists(name) {
		return 0, badRequest(`Missing Field "` + name + `"`)
	}

	id, err := v.Get(name).Int64()
	if err != nil {
		return 0, badRequest(`Field "` + name + `" must be a 64-bit integer value`)
	}

	if id < 1 {
		return 0, badRequest(`Field "` + name + `" must be a valid ` + entity + ` id greater than zero`)
	}

	return id, nil
}

// optionalIDField returns 0 for an absent or null field
func optionalIDField(v *fastjson.Value, name, entity string) (int64, error) {
	if !v.Exists(name) || v.Get(name).Type() == fastjson.TypeNull {
		return 0, nil
	}
	return idField(v, name, entity)
}

func stringField(v *fastjson.Value, name string, required bool) (string, error) {
	if !v.Exists(name) {
		if required {
			return "", badRequest(`Missing Field "` + name + `"`)
		}
		return "", nil
	}

	b, err := v.Get(name).StringBytes()
	if err != nil {
		return "", badRequest(`Field "` + name + `" must be a string`)
	}

	return string(b), nil
}

func boolField(v *fastjson.Value, name string, required bool) (bool, error) {
	if !v.Exists(name) {
		if required {
			return false, badRequest(`Missing Field "` + name + `"`)
		}
		return false, nil
	}

	b, err := v.Get(name).Bool()
	if err != nil {
		return false, badRequest(`Field "` + name + `" must be a boolean`)
	}

	return b, nil
}

// fail writes the HTTP error matching err
func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		br badRequest
		ve *chat.ValidationError
	)
	switch {
	case errors.As(err, &br):
		http.Error(w, br.Error(), http.StatusBadRequest)
	case errors.As(err, &ve):
		http.Error(w, ve.Error(), http.StatusBadRequest)
	case errors.Is(err, chat.ErrUsernameTaken):
		http.Error(w, "Username is taken by an online user", http.StatusBadRequest)
	case errors.Is(err, chat.ErrUserNotFound):
		http.Error(w, "User does not exist", http.StatusNotFound)
	case errors.Is(err, chat.ErrGroupNotFound):
		http.Error(w, "Group does not exist", http.StatusNotFound)
	case errors.Is(err, chat.ErrInvalidPassword):
		http.Error(w, "Wrong group password", http.StatusForbidden)
	case errors.Is(err, chat.ErrNotParticipant):
		http.Error(w, "User is not chat participant", http.StatusForbidden)
	default:
		zapadapter.FromContext(r.Context(), h.logger).Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// respond marshals payload, a []byte payload is written as is
func (h *handler) respond(w http.ResponseWriter, code int, payload interface{}) {
	data, ok := payload.([]byte)
	if !ok {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			h.logger.Error(err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, err := w.Write(data)
	if err != nil {
		h.logger.Errorf("writing marshaled data to ResponseWriter: %v", err)
	}
}

// orEmpty keeps empty lists from being marshaled as null
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

var okPayload = []byte(`{}`)

func countPayload(name string, n int64) []byte {
	return []byte(`{"` + name + `":` + strconv.FormatInt(n, 10) + `}`)
}

// sessionUser exposes the session token to its owner only
type sessionUser struct {
	storage.User
	Session string `json:"session"`
}

// createUser handles HTTP requests on "/users/add" endpoint
func (h *handler) createUser(w http.ResponseWriter, r *http.Request) {
	var username, session string
	err := h.decode(r, func(v *fastjson.Value) error {
		var err error
		if username, err = stringField(v, "username", true); err != nil {
			return err
		}
		session, err = stringField(v, "session", false)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	u, err := h.svc.CreateUser(r.Context(), username, session)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.respond(w, http.StatusCreated, sessionUser{User: u, Session: u.SessionID})
}

// currentUser handles HTTP requests on "/users/me" endpoint
func (h *handler) currentUser(w http.ResponseWriter, r *http.Request) {
	var session string
	err := h.decode(r, func(v *fastjson.Value) error {
		var err error
		session, err = stringField(v, "session", true)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	u, err := h.svc.CurrentUser(r.Context(), session)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.respond(w, http.StatusOK, u)
}

// logoutUser handles HTTP requests on "/users/logout" endpoint
func (h *handler) logoutUser(w http.ResponseWriter, r *http.Request) {
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

	if err := h.svc.LogoutUser(r.Context(), userID); err != nil {
		h.fail(w, r, err)
		return
	}

	h.respond(w, http.StatusOK, okPayload)
}

// updatePresence handles HTTP requests on "/users/presence" endpoint
func (h *handler) updatePresence(w http.ResponseWriter, r *http.Request) {
	var (
		userID int64
		online bool
	)
	err := h.decode(r, func(v *fastjson.Value) error {
		var err error
		if userID, err = idField(v, "user", "user"); err != nil {
			return err
		}
		online, err = boolField(v, "online", true)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.svc.UpdatePresence(r.Context(), userID, online); err != nil {
		h.fail(w, r, err)
		return
	}

	h.respond(w, http.StatusOK, okPayload)
}

// onlineUsers handles HTTP requests on "/users/online" endpoint
func (h *handler) onlineUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.OnlineUsers(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.respond(w, http.StatusOK, orEmpty(users))
}

// createGroup handles HTTP requests on "/groups/add" endpoint
func (h *handler) createGroup(w http.ResponseWriter, r *http.Request) {
	var in chat.NewGroup
	err := h.decode(r, func(v *fastjson.Value) error {
		var err error
		if in.Name, err = stringField(v, "name", true); err != nil {
			return err
		}
		if in.Description, err = stringField(v, "description", false); err != nil {
			return err
		}
		if in.Private, err = boolField(v, "private", false); err != nil {
			return err
		}
		if in.Password, err = stringField(v, "password", false); err != nil {
			return err
		}
		in.CreatedBy, err = idField(v, "user", "user")
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	g, err := h.svc.CreateGroup(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.respond(w, http.StatusCreated, g)
}

// joinGroup handles HTTP requests on "/groups/join" endpoint
func (h *handler) joinGroup(w http.ResponseWriter, r *http.Request) {
	var (
		groupID, userID int64
		password        string
	)
	err := h.decode(r, func(v *fastjson.Value) error {
		var err error
		if groupID, err = idField(v, "group", "group"); err != nil {
			return err
		}
		if userID, err = idField(v, "user", "user"); err != nil {
			return err
		}
		password, err = stringField(v, "password", false)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.svc.JoinGroup(r.Context(), groupID, userID, password); err != nil {
		h.fail(w, r, err)
		return
	}

	h.respond(w, http.StatusOK, okPayload)
}

// leaveGroup handles HTTP requests on "/groups/leave" endpoint
func (h *handler) leaveGroup(w http.ResponseWriter, r *http.Request) {
	var groupID, userID int64
	err := h.decode(r, func(v *fastjson.Value) error {
		var err error
		if groupID, err = idField(v, "group", "group"); err != nil {
			return err
		}
		userID, err = idField(v, "user", "user")
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.svc.LeaveGroup(r.Context(), groupID, userID); err != nil {
		h.fail(w, r, err)
		return
	}

	h.respond(w, http.StatusOK, okPayload)
}

// publicGroups handles HTTP requests on "/groups/public" endpoint
func (h *handler) publicGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.svc.PublicGroups(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.respond(w, http.StatusOK, orEmpty(groups))
}

// userGroups handles HTTP requests on "/groups/mine" endpoint
func (h *handler) userGroups(w http.ResponseWriter, r *http.Request) {
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

	groups, err := h.svc.UserGroups(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.respond(w, http.StatusOK, orEmpty(groups))
}
