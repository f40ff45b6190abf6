package server

import (
	"bytes"
	"context"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"io"
	"net/http"
	"net/http/httptest"
	"sessionchat/internal/chat"
	"sessionchat/internal/storage"
	mytesting "sessionchat/internal/testing"
	"strconv"
	"strings"
	"testing"
	"time"
)

func bootstrapHandler(t *testing.T) (*handler, *storage.Store) {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	store, err := storage.New(logger.Sugar(), storage.TestConfig)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	cfg := chat.DefaultConfig()
	cfg.PasswordCost = bcrypt.MinCost
	svc := chat.NewService(logger.Sugar(), store, chat.WithClock(mytesting.NewClock()), chat.WithConfig(cfg))

	h := &handler{
		logger: logger.Sugar(),
		svc:    svc,
	}

	return h, store
}

func statusOkHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// serve sends body to handler f the way enforcePostJson would pass it on
func serve(t *testing.T, f http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req, err := http.NewRequest("POST", "/", bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	enforcePostJson(f).ServeHTTP(rr, req)

	return rr
}

func parseBody(t *testing.T, rr *httptest.ResponseRecorder) *fastjson.Value {
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)

	var p fastjson.Parser
	v, err := p.ParseBytes(body)
	require.NoError(t, err)
	return v
}

func createUser(t *testing.T, h *handler) int64 {
	rr := serve(t, h.createUser, `{"username":"`+mytesting.RandUsername()+`"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	id, err := parseBody(t, rr).Get("id").Int64()
	require.NoError(t, err)
	return id
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestEnforcePostJson(t *testing.T) {
	t.Parallel()

	payload := bytes.NewBuffer([]byte(`{"username":"` + mytesting.RandUsername() + `"}`))
	req, err := http.NewRequest("POST", "/", payload)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	handler := enforcePostJson(http.HandlerFunc(statusOkHandler))

	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
}

func TestEnforcePostJson_NotPOST(t *testing.T) {
	t.Parallel()

	req, err := http.NewRequest("GET", "/", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	handler := enforcePostJson(http.HandlerFunc(statusOkHandler))

	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	require.Equal(t, "POST", rr.Header().Get("Allow"))
	require.Equal(t, http.StatusText(http.StatusMethodNotAllowed)+"\n", rr.Body.String())
}

func TestEnforcePostJson_MalformedContentType(t *testing.T) {
	t.Parallel()

	req, err := http.NewRequest("POST", "/", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "1:2\n+/-")

	rr := httptest.NewRecorder()
	handler := enforcePostJson(http.HandlerFunc(statusOkHandler))

	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Malformed Content-Type header\n", rr.Body.String())
}

func TestEnforcePostJson_UnsupportedContentType(t *testing.T) {
	t.Parallel()

	req, err := http.NewRequest("POST", "/", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "text/plain")

	rr := httptest.NewRecorder()
	handler := enforcePostJson(http.HandlerFunc(statusOkHandler))

	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
	require.Equal(t, "Content-Type header must be application/json\n", rr.Body.String())
}

func TestEnforcePostJson_NoContentType(t *testing.T) {
	t.Parallel()

	req, err := http.NewRequest("POST", "/", bytes.NewBufferString(`{}`))
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	handler := enforcePostJson(http.HandlerFunc(statusOkHandler))

	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/json", req.Header.Get("Content-Type"))
}

func TestEnforcePostJson_NoBody(t *testing.T) {
	t.Parallel()

	req, err := http.NewRequest("POST", "/", bytes.NewBuffer(nil))
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	handler := enforcePostJson(http.HandlerFunc(statusOkHandler))

	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "No body provided\n", rr.Body.String())
}

func TestEnforcePostJson_MalformedJSON(t *testing.T) {
	t.Parallel()

	// missing opening quotation mark after colon
	req, err := http.NewRequest("POST", "/", bytes.NewBufferString(`{"username":`+mytesting.RandUsername()+`"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	handler := enforcePostJson(http.HandlerFunc(statusOkHandler))

	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Malformed JSON\n", rr.Body.String())
}

func TestEnforcePostJson_TooLarge(t *testing.T) {
	t.Parallel()

	big := `{"text":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	req, err := http.NewRequest("POST", "/", bytes.NewBufferString(big))
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	handler := enforcePostJson(http.HandlerFunc(statusOkHandler))

	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestCreateUser(t *testing.T) {
	t.Parallel()

	h, _ := bootstrapHandler(t)

	rr := serve(t, h.createUser, `{"username":"alice","session":"alice-tab"}`)

	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	// validating response JSON
	v := parseBody(t, rr)
	_, err := v.Get("id").Int64()
	require.NoError(t, err)
	require.Equal(t, "alice", string(v.GetStringBytes("username")))
	require.Equal(t, "alice-tab", string(v.GetStringBytes("session")))
	require.True(t, v.GetBool("is_online"))
}

func TestCreateUserIssuesSession(t *testing.T) {
	t.Parallel()

	h, _ := bootstrapHandler(t)

	rr := serve(t, h.createUser, `{"username":"bob"}`)

	require.Equal(t, http.StatusCreated, rr.Code)
	require.NotEmpty(t, parseBody(t, rr).GetStringBytes("session"))
}

func TestCreateUserNoUsernameField(t *testing.T) {
	t.Parallel()

	h, _ := bootstrapHandler(t)

	rr := serve(t, h.createUser, `{"alice":"bob"}`)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Missing Field \"username\"\n", rr.Body.String())
}

func TestCreateUserBlankUsername(t *testing.T) {
	t.Parallel()

	h, _ := bootstrapHandler(t)

	rr := serve(t, h.createUser, `{"username":""}`)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "field \"username\" is required\n", rr.Body.String())
}

func TestCreateUserNullUsername(t *testing.T) {
	t.Parallel()

	h, _ := bootstrapHandler(t)

	rr := serve(t, h.createUser, `{"username":null}`)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Field \"username\" must be a string\n", rr.Body.String())
}

func TestCreateUserNotObject(t *testing.T) {
	t.Parallel()

	h, _ := bootstrapHandler(t)

	rr := serve(t, h.createUser, `["alice"]`)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Request body must be a JSON object\n", rr.Body.String())
}

func TestCreateUserUsernameTaken(t *testing.T) {
	t.Parallel()

	h, _ := bootstrapHandler(t)

	rr := serve(t, h.createUser, `{"username":"carol","session":"one"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = serve(t, h.createUser, `{"username":"carol","session":"two"}`)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Username is taken by an online user\n", rr.Body.String())
}

func TestCreateUserInternalOnCreateUserCall(t *testing.T) {
	t.Parallel()

	h, store := bootstrapHandler(t)

	store.Close()

	rr := serve(t, h.createUser, `{"username":"`+mytesting.RandUsername()+`"}`)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestCurrentUser(t *testing.T) {
	t.Parallel()

	h, _ := bootstrapHandler(t)
	rr := serve(t, h.createUser, `{"username":"dave","session":"dave-tab"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = serve(t, h.currentUser, `{"session":"dave-tab"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	v := parseBody(t, rr)
	require.Equal(t, "dave", string(v.GetStringBytes("username")))
	// the token is only handed out on creation
	require.False(t, v.Exists("session"))

	rr = serve(t, h.currentUser, `{"session":"nobody"}`)
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "User does not exist\n", rr.Body.String())
}

func TestUpdatePresenceAndOnlineUsers(t *testing.T) {
	t.Parallel()

	h, _ := bootstrapHandler(t)
	a := createUser(t, h)
	createUser(t, h)

	rr := serve(t, h.updatePresence, `{"user":`+itoa(a)+`,"online":false}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = serve(t, h.onlineUsers, `{}`)
	require.Equal(t, http.StatusOK, rr.Code)
	users, err := parseBody(t, rr).Array()
	require.NoError(t, err)
	require.Len(t, users, 1)

	rr = serve(t, h.updatePresence, `{"user":`+itoa(a)+`,"online":"yes"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Field \"online\" must be a boolean\n", rr.Body.String())

	rr = serve(t, h.updatePresence, `{"user":0,"online":true}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Field \"user\" must be a valid user id greater than zero\n", rr.Body.String())

	rr = serve(t, h.updatePresence, `{"user":"1","online":true}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Field \"user\" must be a 64-bit integer value\n", rr.Body.String())
}

func TestLogoutUser(t *testing.T) {
	t.Parallel()

	h, _ := bootstrapHandler(t)
	a := createUser(t, h)

	rr := serve(t, h.logoutUser, `{"user":`+itoa(a)+`}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "{}", rr.Body.String())

	rr = serve(t, h.logoutUser, `{"user":`+itoa(a)+`}`)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGroups(t *testing.T) {
	t.Parallel()

	h, _ := bootstrapHandler(t)
	owner := createUser(t, h)
	joiner := createUser(t, h)

	rr := serve(t, h.createGroup, `{"name":"Team","private":true,"password":"pw1","user":`+itoa(owner)+`}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	v := parseBody(t, rr)
	groupID, err := v.Get("id").Int64()
	require.NoError(t, err)
	require.Equal(t, 1, v.GetInt("member_count"))
	require.False(t, v.Exists("password_hash"))

	rr = serve(t, h.joinGroup, `{"group":`+itoa(groupID)+`,"user":`+itoa(joiner)+`,"password":"nope"}`)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Equal(t, "Wrong group password\n", rr.Body.String())

	rr = serve(t, h.joinGroup, `{"group":`+itoa(groupID)+`,"user":`+itoa(joiner)+`}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(t, h.joinGroup, `{"group":`+itoa(groupID)+`,"user":`+itoa(joiner)+`,"password":"pw1"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = serve(t, h.userGroups, `{"user":`+itoa(joiner)+`}`)
	require.Equal(t, http.StatusOK, rr.Code)
	groups, err := parseBody(t, rr).Array()
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Equal(t, 2, groups[0].GetInt("member_count"))

	rr = serve(t, h.leaveGroup, `{"group":`+itoa(groupID)+`,"user":`+itoa(joiner)+`}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = serve(t, h.publicGroups, `{}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "[]", rr.Body.String())

	rr = serve(t, h.joinGroup, `{"group":999,"user":`+itoa(joiner)+`}`)
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "Group does not exist\n", rr.Body.String())
}

func TestMessages(t *testing.T) {
	t.Parallel()

	h, _ := bootstrapHandler(t)
	a := createUser(t, h)
	b := createUser(t, h)

	rr := serve(t, h.sendMessage, `{"sender":`+itoa(a)+`,"recipient":`+itoa(b)+`,"text":"hi"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	v := parseBody(t, rr)
	require.Equal(t, "sent", string(v.GetStringBytes("status")))
	chatKey := string(v.GetStringBytes("chat"))
	require.NotEmpty(t, chatKey)

	rr = serve(t, h.unreadCount, `{"chat":"`+chatKey+`","user":`+itoa(b)+`}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, `{"unread":1}`, rr.Body.String())

	rr = serve(t, h.activeChats, `{"user":`+itoa(b)+`}`)
	require.Equal(t, http.StatusOK, rr.Code)
	chats, err := parseBody(t, rr).Array()
	require.NoError(t, err)
	require.Len(t, chats, 1)
	require.Equal(t, 1, chats[0].GetInt("unread_count"))
	require.Equal(t, a, chats[0].GetInt64("peer", "id"))

	rr = serve(t, h.markChatSeen, `{"chat":"`+chatKey+`","user":`+itoa(b)+`}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, `{"seen":1}`, rr.Body.String())

	rr = serve(t, h.chatHistory, `{"chat":"`+chatKey+`","user":`+itoa(b)+`}`)
	require.Equal(t, http.StatusOK, rr.Code)
	messages, err := parseBody(t, rr).Array()
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, "seen", string(messages[0].GetStringBytes("status")))
	require.Equal(t, "hi", string(messages[0].GetStringBytes("text")))
	require.Equal(t, a, messages[0].GetInt64("sender", "id"))
}

func TestSendMessageBothTargets(t *testing.T) {
	t.Parallel()

	h, _ := bootstrapHandler(t)
	a := createUser(t, h)
	b := createUser(t, h)

	rr := serve(t, h.sendMessage, `{"sender":`+itoa(a)+`,"recipient":`+itoa(b)+`,"group":1,"text":"hi"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "field \"recipient\" exactly one of recipient and group must be set\n", rr.Body.String())

	rr = serve(t, h.sendMessage, `{"sender":`+itoa(a)+`,"recipient":null,"text":"hi"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(t, h.sendMessage, `{"sender":`+itoa(a)+`,"recipient":`+itoa(b)+`}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Missing Field \"text\"\n", rr.Body.String())
}

func TestChatAccessForbidden(t *testing.T) {
	t.Parallel()

	h, _ := bootstrapHandler(t)
	a := createUser(t, h)
	b := createUser(t, h)
	c := createUser(t, h)

	key := "private_" + itoa(a) + "_" + itoa(b)
	rr := serve(t, h.chatHistory, `{"chat":"`+key+`","user":`+itoa(c)+`}`)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Equal(t, "User is not chat participant\n", rr.Body.String())

	rr = serve(t, h.chatHistory, `{"chat":"private_x","user":`+itoa(c)+`}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "field \"chat\" must be a valid chat key\n", rr.Body.String())
}

func TestTyping(t *testing.T) {
	t.Parallel()

	h, _ := bootstrapHandler(t)
	a := createUser(t, h)
	b := createUser(t, h)
	key := "private_" + itoa(a) + "_" + itoa(b)

	rr := serve(t, h.setTyping, `{"chat":"`+key+`","user":`+itoa(a)+`,"typing":true}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = serve(t, h.typingIndicators, `{"chat":"`+key+`"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	indicators, err := parseBody(t, rr).Array()
	require.NoError(t, err)
	require.Len(t, indicators, 1)
	require.Equal(t, a, indicators[0].GetInt64("user_id"))

	rr = serve(t, h.setTyping, `{"chat":"`+key+`","user":`+itoa(a)+`}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Missing Field \"typing\"\n", rr.Body.String())
}

func TestNewServerRoutes(t *testing.T) {
	t.Parallel()

	h, _ := bootstrapHandler(t)
	srv, err := NewServer(h.logger, h.svc, TimeoutHandler(time.Second, "timeout"))
	require.NoError(t, err)

	req, err := http.NewRequest("POST", "/users/add", bytes.NewBufferString(`{"username":"erin"}`))
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	req, err = http.NewRequest("GET", "/chats/get", nil)
	require.NoError(t, err)
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	req, err = http.NewRequest("POST", "/nowhere", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStartStopsOnCancel(t *testing.T) {
	t.Parallel()

	h, _ := bootstrapHandler(t)

	stopped := make(chan struct{})
	srv, err := NewServer(h.logger, h.svc,
		WithEnvConfig(EnvConfig{Host: "127.0.0.1", Port: 0}),
		RegisterAfterShutdown(func() { close(stopped) }),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	<-stopped
}
