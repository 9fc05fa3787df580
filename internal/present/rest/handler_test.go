package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/lacomunita/comunita/internal/domain"
	"github.com/lacomunita/comunita/internal/present/rest/middleware"
	"github.com/lacomunita/comunita/internal/service"
	"github.com/lacomunita/comunita/internal/usecase"
)

// --- in-memory repositories ---

type memJoinable struct {
	id      int64
	name    string
	members []int64
}

func (j *memJoinable) isMember(userID int64) bool {
	for _, id := range j.members {
		if id == userID {
			return true
		}
	}
	return false
}

func (j *memJoinable) remove(userID int64) bool {
	for i, id := range j.members {
		if id == userID {
			j.members = append(j.members[:i], j.members[i+1:]...)
			return true
		}
	}
	return false
}

type memGroup struct {
	memJoinable
	communityID int64
	isActive    bool
}

type memChat struct {
	memJoinable
	groupID *int64
}

type memState struct {
	seq         int64
	users       map[int64]domain.User
	hashes      map[string]string
	communities map[int64]*memJoinable
	groups      map[int64]*memGroup
	chats       map[int64]*memChat
	messages    map[int64]*domain.Message
	invitations map[int64]*domain.Invitation
}

func newMemState() *memState {
	return &memState{
		users:       map[int64]domain.User{},
		hashes:      map[string]string{},
		communities: map[int64]*memJoinable{},
		groups:      map[int64]*memGroup{},
		chats:       map[int64]*memChat{},
		messages:    map[int64]*domain.Message{},
		invitations: map[int64]*domain.Invitation{},
	}
}

func (s *memState) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *memState) addUser(handle string) domain.User {
	user := domain.User{ID: s.nextID(), Handle: handle}
	s.users[user.ID] = user
	return user
}

func (s *memState) collectGroup(id int64) {
	for chatID, chat := range s.chats {
		if chat.groupID != nil && *chat.groupID == id {
			s.collectChat(chatID)
		}
	}
	for invID, inv := range s.invitations {
		if inv.TargetKind == domain.InviteTargetGroup && inv.TargetID == id {
			delete(s.invitations, invID)
		}
	}
	delete(s.groups, id)
}

func (s *memState) collectChat(id int64) {
	for msgID, msg := range s.messages {
		if msg.ChatID == id {
			delete(s.messages, msgID)
		}
	}
	for invID, inv := range s.invitations {
		if inv.TargetKind == domain.InviteTargetChat && inv.TargetID == id {
			delete(s.invitations, invID)
		}
	}
	delete(s.chats, id)
}

type memUserRepo struct{ s *memState }

func (r *memUserRepo) Create(ctx context.Context, handle, passwordHash, pictureURL string) (domain.User, error) {
	for _, u := range r.s.users {
		if u.Handle == handle {
			return domain.User{}, domain.ConflictError{Reason: "handle already taken"}
		}
	}
	user := domain.User{ID: r.s.nextID(), Handle: handle, PictureURL: pictureURL}
	r.s.users[user.ID] = user
	r.s.hashes[handle] = passwordHash
	return user, nil
}

func (r *memUserRepo) Get(ctx context.Context, id int64) (domain.User, error) {
	u, ok := r.s.users[id]
	if !ok {
		return domain.User{}, domain.NotFoundError{Resource: "user"}
	}
	return u, nil
}

func (r *memUserRepo) GetByHandle(ctx context.Context, handle string) (domain.User, string, error) {
	for _, u := range r.s.users {
		if u.Handle == handle {
			return u, r.s.hashes[handle], nil
		}
	}
	return domain.User{}, "", domain.NotFoundError{Resource: "user"}
}

func (r *memUserRepo) List(ctx context.Context) ([]domain.User, error) {
	result := []domain.User{}
	for _, u := range r.s.users {
		result = append(result, u)
	}
	return result, nil
}

type memCommunityRepo struct{ s *memState }

func (r *memCommunityRepo) Create(ctx context.Context, name, pictureURL string, creatorID int64) (domain.Community, error) {
	c := &memJoinable{id: r.s.nextID(), name: name, members: []int64{creatorID}}
	r.s.communities[c.id] = c
	return domain.Community{ID: c.id, Name: c.name, Members: append([]int64{}, c.members...)}, nil
}

func (r *memCommunityRepo) Get(ctx context.Context, id, viewerID int64) (domain.Community, error) {
	c, ok := r.s.communities[id]
	if !ok || !c.isMember(viewerID) {
		return domain.Community{}, domain.NotFoundError{Resource: "community"}
	}
	return domain.Community{ID: c.id, Name: c.name, Members: append([]int64{}, c.members...)}, nil
}

func (r *memCommunityRepo) ListVisible(ctx context.Context, viewerID int64) ([]domain.Community, error) {
	result := []domain.Community{}
	for _, c := range r.s.communities {
		if c.isMember(viewerID) {
			result = append(result, domain.Community{ID: c.id, Name: c.name, Members: append([]int64{}, c.members...)})
		}
	}
	return result, nil
}

func (r *memCommunityRepo) Join(ctx context.Context, id, userID int64) error {
	c, ok := r.s.communities[id]
	if !ok {
		return domain.NotFoundError{Resource: "community"}
	}
	if !c.isMember(userID) {
		c.members = append(c.members, userID)
	}
	return nil
}

func (r *memCommunityRepo) Leave(ctx context.Context, id, userID int64) error {
	c, ok := r.s.communities[id]
	if !ok || !c.remove(userID) {
		return domain.NotFoundError{Resource: "community"}
	}
	return nil
}

type memGroupRepo struct{ s *memState }

func (r *memGroupRepo) Create(ctx context.Context, name, pictureURL string, communityID, creatorID int64) (domain.Group, error) {
	c, ok := r.s.communities[communityID]
	if !ok {
		return domain.Group{}, domain.NotFoundError{Resource: "community"}
	}
	if !c.isMember(creatorID) {
		return domain.Group{}, domain.ForbiddenError{Reason: "not a community member"}
	}
	g := &memGroup{
		memJoinable: memJoinable{id: r.s.nextID(), name: name, members: []int64{creatorID}},
		communityID: communityID,
	}
	g.isActive = domain.GroupActive(int64(len(g.members)))
	r.s.groups[g.id] = g
	return r.toDomain(g), nil
}

func (r *memGroupRepo) toDomain(g *memGroup) domain.Group {
	return domain.Group{
		ID:          g.id,
		Name:        g.name,
		CommunityID: g.communityID,
		IsActive:    g.isActive,
		Members:     append([]int64{}, g.members...),
	}
}

func (r *memGroupRepo) Get(ctx context.Context, id, viewerID int64) (domain.Group, error) {
	g, ok := r.s.groups[id]
	if !ok || !g.isMember(viewerID) {
		return domain.Group{}, domain.NotFoundError{Resource: "group"}
	}
	return r.toDomain(g), nil
}

func (r *memGroupRepo) ListVisible(ctx context.Context, viewerID int64) ([]domain.Group, error) {
	result := []domain.Group{}
	for _, g := range r.s.groups {
		if g.isMember(viewerID) {
			result = append(result, r.toDomain(g))
		}
	}
	return result, nil
}

func (r *memGroupRepo) Leave(ctx context.Context, id, userID int64) error {
	g, ok := r.s.groups[id]
	if !ok || !g.remove(userID) {
		return domain.NotFoundError{Resource: "group"}
	}
	count := int64(len(g.members))
	if domain.ShouldCollect(domain.KindGroup, count) {
		r.s.collectGroup(id)
		return nil
	}
	g.isActive = domain.GroupActive(count)
	return nil
}

type memChatRepo struct{ s *memState }

func (r *memChatRepo) Create(ctx context.Context, name string, groupID *int64, creatorID int64) (domain.Chat, error) {
	if groupID != nil {
		g, ok := r.s.groups[*groupID]
		if !ok {
			return domain.Chat{}, domain.NotFoundError{Resource: "group"}
		}
		if !g.isMember(creatorID) {
			return domain.Chat{}, domain.ForbiddenError{Reason: "not a group member"}
		}
	}
	c := &memChat{
		memJoinable: memJoinable{id: r.s.nextID(), name: name, members: []int64{creatorID}},
		groupID:     groupID,
	}
	r.s.chats[c.id] = c
	return r.toDomain(c), nil
}

func (r *memChatRepo) toDomain(c *memChat) domain.Chat {
	return domain.Chat{ID: c.id, Name: c.name, GroupID: c.groupID, Members: append([]int64{}, c.members...)}
}

func (r *memChatRepo) Get(ctx context.Context, id, viewerID int64) (domain.Chat, error) {
	c, ok := r.s.chats[id]
	if !ok || !c.isMember(viewerID) {
		return domain.Chat{}, domain.NotFoundError{Resource: "chat"}
	}
	return r.toDomain(c), nil
}

func (r *memChatRepo) ListVisible(ctx context.Context, viewerID int64) ([]domain.Chat, error) {
	result := []domain.Chat{}
	for _, c := range r.s.chats {
		if c.isMember(viewerID) {
			result = append(result, r.toDomain(c))
		}
	}
	return result, nil
}

func (r *memChatRepo) Leave(ctx context.Context, id, userID int64) error {
	c, ok := r.s.chats[id]
	if !ok || !c.remove(userID) {
		return domain.NotFoundError{Resource: "chat"}
	}
	if domain.ShouldCollect(domain.KindChat, int64(len(c.members))) {
		r.s.collectChat(id)
	}
	return nil
}

func (r *memChatRepo) IsMember(ctx context.Context, id, userID int64) (bool, error) {
	c, ok := r.s.chats[id]
	return ok && c.isMember(userID), nil
}

type memMessageRepo struct{ s *memState }

func (r *memMessageRepo) Create(ctx context.Context, chatID, senderID int64, content string) (domain.Message, error) {
	c, ok := r.s.chats[chatID]
	if !ok {
		return domain.Message{}, domain.NotFoundError{Resource: "chat"}
	}
	if !c.isMember(senderID) {
		return domain.Message{}, domain.ForbiddenError{Reason: "not a chat member"}
	}
	msg := domain.Message{ID: r.s.nextID(), ChatID: chatID, SenderID: senderID, Content: content, SeenBy: []int64{}}
	r.s.messages[msg.ID] = &msg
	return msg, nil
}

func (r *memMessageRepo) ListVisible(ctx context.Context, viewerID int64, chatID *int64) ([]domain.Message, error) {
	result := []domain.Message{}
	for _, msg := range r.s.messages {
		if chatID != nil && msg.ChatID != *chatID {
			continue
		}
		c, ok := r.s.chats[msg.ChatID]
		if ok && c.isMember(viewerID) {
			result = append(result, *msg)
		}
	}
	return result, nil
}

func (r *memMessageRepo) MarkSeen(ctx context.Context, messageID, userID int64) error {
	msg, ok := r.s.messages[messageID]
	if !ok {
		return domain.NotFoundError{Resource: "message"}
	}
	c, ok := r.s.chats[msg.ChatID]
	if !ok {
		return domain.NotFoundError{Resource: "chat"}
	}
	if !c.isMember(userID) {
		return domain.ForbiddenError{Reason: "not a chat member"}
	}
	for _, id := range msg.SeenBy {
		if id == userID {
			return nil
		}
	}
	msg.SeenBy = append(msg.SeenBy, userID)
	return nil
}

type memInvitationRepo struct{ s *memState }

func (r *memInvitationRepo) Create(ctx context.Context, kind domain.InvitationTargetKind, targetID, inviterID, inviteeID int64) (domain.Invitation, error) {
	if _, ok := r.s.users[inviteeID]; !ok {
		return domain.Invitation{}, domain.NotFoundError{Resource: "invitee"}
	}
	var member bool
	switch kind {
	case domain.InviteTargetGroup:
		g, ok := r.s.groups[targetID]
		if !ok {
			return domain.Invitation{}, domain.NotFoundError{Resource: "group"}
		}
		member = g.isMember(inviterID)
	case domain.InviteTargetChat:
		c, ok := r.s.chats[targetID]
		if !ok {
			return domain.Invitation{}, domain.NotFoundError{Resource: "chat"}
		}
		member = c.isMember(inviterID)
	}
	if !member {
		return domain.Invitation{}, domain.ForbiddenError{Reason: "inviter is not a member of the target"}
	}
	inv := domain.Invitation{ID: r.s.nextID(), TargetKind: kind, TargetID: targetID, InviterID: inviterID, InviteeID: inviteeID}
	r.s.invitations[inv.ID] = &inv
	return inv, nil
}

func (r *memInvitationRepo) ListFor(ctx context.Context, kind domain.InvitationTargetKind, userID int64) ([]domain.Invitation, error) {
	result := []domain.Invitation{}
	for _, inv := range r.s.invitations {
		if inv.TargetKind == kind && (inv.InviterID == userID || inv.InviteeID == userID) {
			result = append(result, *inv)
		}
	}
	return result, nil
}

func (r *memInvitationRepo) Resolve(ctx context.Context, kind domain.InvitationTargetKind, id, actorID int64, verdict domain.InvitationVerdict) (domain.Invitation, error) {
	inv, ok := r.s.invitations[id]
	if !ok || inv.TargetKind != kind {
		return domain.Invitation{}, domain.NotFoundError{Resource: "invitation"}
	}

	state, err := domain.ResolveInvitation(*inv, actorID, verdict)
	if err != nil {
		return domain.Invitation{}, err
	}

	accepted := state == domain.InviteAccepted
	inv.Accepted = &accepted

	if accepted {
		switch kind {
		case domain.InviteTargetGroup:
			g := r.s.groups[inv.TargetID]
			if !g.isMember(actorID) {
				g.members = append(g.members, actorID)
			}
			g.isActive = domain.GroupActive(int64(len(g.members)))
		case domain.InviteTargetChat:
			c := r.s.chats[inv.TargetID]
			if !c.isMember(actorID) {
				c.members = append(c.members, actorID)
			}
		}
	}

	return *inv, nil
}

// --- fixture ---

// fakeStreamer records subscription lists and forwards injected events,
// exiting on context cancellation like the redis-backed streamer.
type fakeStreamer struct {
	mu     sync.Mutex
	subs   [][]int64
	events chan domain.Event
}

func newFakeStreamer() *fakeStreamer {
	return &fakeStreamer{events: make(chan domain.Event)}
}

func (s *fakeStreamer) Realtime(ctx context.Context, input chan []int64, output chan domain.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ids := <-input:
			s.mu.Lock()
			s.subs = append(s.subs, ids)
			s.mu.Unlock()
		case event := <-s.events:
			select {
			case output <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *fakeStreamer) lastSub() ([]int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subs) == 0 {
		return nil, false
	}
	return s.subs[len(s.subs)-1], true
}

type fixture struct {
	e      *echo.Echo
	state  *memState
	auth   *service.AuthService
	stream *fakeStreamer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	state := newMemState()
	auth := service.NewAuthService("test-secret", "comunita-test")
	stream := newFakeStreamer()

	userUC := usecase.NewUserUsecase(&memUserRepo{state})
	communityUC := usecase.NewCommunityUsecase(&memCommunityRepo{state})
	groupUC := usecase.NewGroupUsecase(&memGroupRepo{state})
	chatUC := usecase.NewChatUsecase(&memChatRepo{state})
	messageUC := usecase.NewMessageUsecase(&memMessageRepo{state}, nil)
	invitationUC := usecase.NewInvitationUsecase(&memInvitationRepo{state})

	h := NewHandler(userUC, communityUC, groupUC, chatUC, messageUC, invitationUC, auth, stream)

	e := echo.New()
	e.Use(middleware.NewAuthMiddleware(auth).IdentifyIdentity)
	h.RegisterRoutes(e)

	return &fixture{e: e, state: state, auth: auth, stream: stream}
}

func (f *fixture) token(t *testing.T, user domain.User) string {
	t.Helper()
	token, err := f.auth.IssueToken(user)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	f.e.ServeHTTP(res, req)
	return res
}

func decode[T any](t *testing.T, res *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(res.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", res.Body.String(), err)
	}
	return out
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// --- tests ---

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)

	res := f.do(t, http.MethodPost, "/api/v1/register", "", map[string]string{
		"handle": "alice", "password": "s3cret",
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", res.Code, res.Body.String())
	}
	created := decode[map[string]any](t, res)
	if token, _ := created["token"].(string); token == "" {
		t.Fatal("expected a token on registration")
	}

	res = f.do(t, http.MethodPost, "/api/v1/login", "", map[string]string{
		"handle": "alice", "password": "s3cret",
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", res.Code)
	}

	res = f.do(t, http.MethodPost, "/api/v1/login", "", map[string]string{
		"handle": "alice", "password": "wrong",
	})
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", res.Code)
	}
}

func TestCreateCommunityAndGroup(t *testing.T) {
	f := newFixture(t)
	u1 := f.state.addUser("u1")
	token := f.token(t, u1)

	res := f.do(t, http.MethodPost, "/communities", token, map[string]any{"name": "c1"})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", res.Code, res.Body.String())
	}
	community := decode[domain.Community](t, res)
	if !contains(community.Members, u1.ID) {
		t.Fatal("creator must be the first community member")
	}

	res = f.do(t, http.MethodPost, "/groups", token, map[string]any{
		"name": "g1", "communityID": community.ID,
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", res.Code, res.Body.String())
	}
	group := decode[domain.Group](t, res)
	if !contains(group.Members, u1.ID) {
		t.Fatal("creator must be the first group member")
	}
	if group.IsActive {
		t.Fatal("a one-member group must be inactive")
	}
}

func TestGroupCreateRequiresCommunityMembership(t *testing.T) {
	f := newFixture(t)
	u1 := f.state.addUser("u1")
	u2 := f.state.addUser("u2")

	res := f.do(t, http.MethodPost, "/communities", f.token(t, u1), map[string]any{"name": "c1"})
	community := decode[domain.Community](t, res)

	res = f.do(t, http.MethodPost, "/groups", f.token(t, u2), map[string]any{
		"name": "g1", "communityID": community.ID,
	})
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", res.Code)
	}
}

func TestCommunityVisibility(t *testing.T) {
	f := newFixture(t)
	u1 := f.state.addUser("u1")
	u2 := f.state.addUser("u2")

	res := f.do(t, http.MethodPost, "/communities", f.token(t, u1), map[string]any{"name": "c1"})
	community := decode[domain.Community](t, res)

	res = f.do(t, http.MethodGet, fmt.Sprintf("/communities/%d", community.ID), f.token(t, u2), nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for non-member got %d", res.Code)
	}

	res = f.do(t, http.MethodGet, "/communities", f.token(t, u2), nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", res.Code)
	}
	if list := decode[[]domain.Community](t, res); len(list) != 0 {
		t.Fatalf("expected empty list for non-member got %d entries", len(list))
	}

	res = f.do(t, http.MethodPost, fmt.Sprintf("/communities/%d/join", community.ID), f.token(t, u2), nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", res.Code)
	}
	res = f.do(t, http.MethodGet, fmt.Sprintf("/communities/%d", community.ID), f.token(t, u2), nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 after join got %d", res.Code)
	}
}

func TestUnauthenticatedRequests(t *testing.T) {
	f := newFixture(t)

	res := f.do(t, http.MethodGet, "/communities", "", nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", res.Code)
	}
	res = f.do(t, http.MethodPost, "/groups", "", map[string]any{"name": "g"})
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", res.Code)
	}
}

func setupGroup(t *testing.T, f *fixture, creator domain.User) domain.Group {
	t.Helper()
	res := f.do(t, http.MethodPost, "/communities", f.token(t, creator), map[string]any{"name": "c"})
	community := decode[domain.Community](t, res)
	res = f.do(t, http.MethodPost, "/groups", f.token(t, creator), map[string]any{
		"name": "g", "communityID": community.ID,
	})
	return decode[domain.Group](t, res)
}

func TestGroupInvitationAcceptFlow(t *testing.T) {
	f := newFixture(t)
	u1 := f.state.addUser("u1")
	u2 := f.state.addUser("u2")
	group := setupGroup(t, f, u1)

	res := f.do(t, http.MethodPost, "/groupinvitations", f.token(t, u1), map[string]any{
		"targetID": group.ID, "invitee": u2.ID,
		// a spoofed inviter field is ignored
		"inviter": 999,
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", res.Code, res.Body.String())
	}
	invitation := decode[domain.Invitation](t, res)
	if invitation.InviterID != u1.ID {
		t.Fatalf("inviter must be the actor, got %d", invitation.InviterID)
	}
	if invitation.Accepted != nil {
		t.Fatal("new invitation must be pending")
	}

	res = f.do(t, http.MethodPost, fmt.Sprintf("/groupinvitations/%d/accept", invitation.ID), f.token(t, u2), nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", res.Code, res.Body.String())
	}
	accepted := decode[domain.Invitation](t, res)
	if accepted.Accepted == nil || !*accepted.Accepted {
		t.Fatal("invitation must be accepted")
	}

	res = f.do(t, http.MethodGet, fmt.Sprintf("/groups/%d", group.ID), f.token(t, u2), nil)
	if res.Code != http.StatusOK {
		t.Fatalf("invitee must see the group after accepting, got %d", res.Code)
	}
	joined := decode[domain.Group](t, res)
	if !contains(joined.Members, u2.ID) {
		t.Fatal("invitee must be a group member after accepting")
	}
}

func TestInvitationWrongActor(t *testing.T) {
	f := newFixture(t)
	u1 := f.state.addUser("u1")
	u2 := f.state.addUser("u2")
	u3 := f.state.addUser("u3")
	group := setupGroup(t, f, u1)

	res := f.do(t, http.MethodPost, "/groupinvitations", f.token(t, u1), map[string]any{
		"targetID": group.ID, "invitee": u2.ID,
	})
	invitation := decode[domain.Invitation](t, res)

	for _, action := range []string{"accept", "reject"} {
		res = f.do(t, http.MethodPost, fmt.Sprintf("/groupinvitations/%d/%s", invitation.ID, action), f.token(t, u3), nil)
		if res.Code != http.StatusForbidden {
			t.Fatalf("expected 403 for %s by non-invitee got %d", action, res.Code)
		}
	}

	if f.state.invitations[invitation.ID].Accepted != nil {
		t.Fatal("invitation state must be unchanged after forbidden resolutions")
	}
	if f.state.groups[group.ID].isMember(u3.ID) {
		t.Fatal("non-invitee must not have joined the group")
	}
}

func TestInvitationDoubleResolution(t *testing.T) {
	f := newFixture(t)
	u1 := f.state.addUser("u1")
	u2 := f.state.addUser("u2")
	group := setupGroup(t, f, u1)

	res := f.do(t, http.MethodPost, "/groupinvitations", f.token(t, u1), map[string]any{
		"targetID": group.ID, "invitee": u2.ID,
	})
	invitation := decode[domain.Invitation](t, res)

	res = f.do(t, http.MethodPost, fmt.Sprintf("/groupinvitations/%d/accept", invitation.ID), f.token(t, u2), nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", res.Code)
	}

	res = f.do(t, http.MethodPost, fmt.Sprintf("/groupinvitations/%d/accept", invitation.ID), f.token(t, u2), nil)
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409 on re-resolution got %d", res.Code)
	}
	res = f.do(t, http.MethodPost, fmt.Sprintf("/groupinvitations/%d/reject", invitation.ID), f.token(t, u2), nil)
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409 on re-resolution got %d", res.Code)
	}
}

func TestInvitationSelfInvite(t *testing.T) {
	f := newFixture(t)
	u1 := f.state.addUser("u1")
	group := setupGroup(t, f, u1)

	res := f.do(t, http.MethodPost, "/groupinvitations", f.token(t, u1), map[string]any{
		"targetID": group.ID, "invitee": u1.ID,
	})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for self-invitation got %d", res.Code)
	}
}

func TestInvitationListing(t *testing.T) {
	f := newFixture(t)
	u1 := f.state.addUser("u1")
	u2 := f.state.addUser("u2")
	u3 := f.state.addUser("u3")
	group := setupGroup(t, f, u1)

	res := f.do(t, http.MethodPost, "/groupinvitations", f.token(t, u1), map[string]any{
		"targetID": group.ID, "invitee": u2.ID,
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", res.Code)
	}

	for _, user := range []domain.User{u1, u2} {
		res = f.do(t, http.MethodGet, "/groupinvitations", f.token(t, user), nil)
		list := decode[[]domain.Invitation](t, res)
		if len(list) != 1 {
			t.Fatalf("expected 1 invitation for %s got %d", user.Handle, len(list))
		}
	}

	res = f.do(t, http.MethodGet, "/groupinvitations", f.token(t, u3), nil)
	if list := decode[[]domain.Invitation](t, res); len(list) != 0 {
		t.Fatalf("expected no invitations for bystander got %d", len(list))
	}
}

func TestGroupActivationAndCollection(t *testing.T) {
	f := newFixture(t)
	u1 := f.state.addUser("u1")
	u2 := f.state.addUser("u2")
	u3 := f.state.addUser("u3")
	group := setupGroup(t, f, u1)

	invite := func(invitee domain.User) {
		res := f.do(t, http.MethodPost, "/groupinvitations", f.token(t, u1), map[string]any{
			"targetID": group.ID, "invitee": invitee.ID,
		})
		inv := decode[domain.Invitation](t, res)
		res = f.do(t, http.MethodPost, fmt.Sprintf("/groupinvitations/%d/accept", inv.ID), f.token(t, invitee), nil)
		if res.Code != http.StatusOK {
			t.Fatalf("accept failed with %d", res.Code)
		}
	}

	invite(u2)
	if f.state.groups[group.ID].isActive {
		t.Fatal("two members must not activate the group")
	}

	invite(u3)
	if !f.state.groups[group.ID].isActive {
		t.Fatal("three members must activate the group")
	}

	for _, user := range []domain.User{u1, u2} {
		res := f.do(t, http.MethodPost, fmt.Sprintf("/groups/%d/leave", group.ID), f.token(t, user), nil)
		if res.Code != http.StatusOK {
			t.Fatalf("leave failed with %d", res.Code)
		}
	}
	if f.state.groups[group.ID].isActive {
		t.Fatal("one member must deactivate the group")
	}

	// a pending invitation left dangling at collection time
	u4 := f.state.addUser("u4")
	res := f.do(t, http.MethodPost, "/groupinvitations", f.token(t, u3), map[string]any{
		"targetID": group.ID, "invitee": u4.ID,
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", res.Code)
	}

	res = f.do(t, http.MethodPost, fmt.Sprintf("/groups/%d/leave", group.ID), f.token(t, u3), nil)
	if res.Code != http.StatusOK {
		t.Fatalf("last leave failed with %d", res.Code)
	}
	if _, ok := f.state.groups[group.ID]; ok {
		t.Fatal("an emptied group must be collected")
	}
	if len(f.state.invitations) != 0 {
		t.Fatalf("invitations of a collected group must be gone, %d remain", len(f.state.invitations))
	}
	res = f.do(t, http.MethodGet, fmt.Sprintf("/groups/%d", group.ID), f.token(t, u3), nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for collected group got %d", res.Code)
	}
}

func TestChatInvitationForbiddenLeavesNoMembership(t *testing.T) {
	f := newFixture(t)
	u1 := f.state.addUser("u1")
	u2 := f.state.addUser("u2")
	u3 := f.state.addUser("u3")

	res := f.do(t, http.MethodPost, "/chats", f.token(t, u1), map[string]any{"name": "ch1"})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", res.Code)
	}
	chat := decode[domain.Chat](t, res)

	res = f.do(t, http.MethodPost, "/chatinvitations", f.token(t, u1), map[string]any{
		"targetID": chat.ID, "invitee": u2.ID,
	})
	invitation := decode[domain.Invitation](t, res)

	res = f.do(t, http.MethodPost, fmt.Sprintf("/chatinvitations/%d/accept", invitation.ID), f.token(t, u3), nil)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", res.Code)
	}
	if f.state.invitations[invitation.ID].Accepted != nil {
		t.Fatal("invitation must remain pending")
	}
	if f.state.chats[chat.ID].isMember(u3.ID) {
		t.Fatal("wrong actor must not join the chat")
	}
}

func TestMessageSenderForcedAndGuarded(t *testing.T) {
	f := newFixture(t)
	u1 := f.state.addUser("u1")
	u2 := f.state.addUser("u2")

	res := f.do(t, http.MethodPost, "/chats", f.token(t, u1), map[string]any{"name": "ch1"})
	chat := decode[domain.Chat](t, res)

	// a spoofed sender field is ignored
	res = f.do(t, http.MethodPost, "/messages", f.token(t, u1), map[string]any{
		"chatID": chat.ID, "content": "hello", "sender": 999,
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", res.Code, res.Body.String())
	}
	message := decode[domain.Message](t, res)
	if message.SenderID != u1.ID {
		t.Fatalf("sender must be the actor, got %d", message.SenderID)
	}

	res = f.do(t, http.MethodPost, "/messages", f.token(t, u2), map[string]any{
		"chatID": chat.ID, "content": "intruding",
	})
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-member got %d", res.Code)
	}
}

func TestMessageSeenAndVisibility(t *testing.T) {
	f := newFixture(t)
	u1 := f.state.addUser("u1")
	u2 := f.state.addUser("u2")

	res := f.do(t, http.MethodPost, "/chats", f.token(t, u1), map[string]any{"name": "ch1"})
	chat := decode[domain.Chat](t, res)

	res = f.do(t, http.MethodPost, "/messages", f.token(t, u1), map[string]any{
		"chatID": chat.ID, "content": "hello",
	})
	message := decode[domain.Message](t, res)

	res = f.do(t, http.MethodGet, "/messages", f.token(t, u2), nil)
	if list := decode[[]domain.Message](t, res); len(list) != 0 {
		t.Fatalf("non-member must see no messages, got %d", len(list))
	}

	res = f.do(t, http.MethodPost, fmt.Sprintf("/messages/%d/seen", message.ID), f.token(t, u2), nil)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-member seen-mark got %d", res.Code)
	}

	res = f.do(t, http.MethodPost, fmt.Sprintf("/messages/%d/seen", message.ID), f.token(t, u1), nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", res.Code)
	}
	if !contains(f.state.messages[message.ID].SeenBy, u1.ID) {
		t.Fatal("seen set must include the marker")
	}

	// marking twice is a no-op
	res = f.do(t, http.MethodPost, fmt.Sprintf("/messages/%d/seen", message.ID), f.token(t, u1), nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", res.Code)
	}
	if len(f.state.messages[message.ID].SeenBy) != 1 {
		t.Fatal("seen set must not grow on repeat marks")
	}
}

func TestChatCollectionOnLastLeave(t *testing.T) {
	f := newFixture(t)
	u1 := f.state.addUser("u1")
	u2 := f.state.addUser("u2")

	res := f.do(t, http.MethodPost, "/chats", f.token(t, u1), map[string]any{"name": "ch1"})
	chat := decode[domain.Chat](t, res)

	res = f.do(t, http.MethodPost, "/messages", f.token(t, u1), map[string]any{
		"chatID": chat.ID, "content": "goodbye",
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", res.Code)
	}

	res = f.do(t, http.MethodPost, "/chatinvitations", f.token(t, u1), map[string]any{
		"targetID": chat.ID, "invitee": u2.ID,
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", res.Code)
	}

	res = f.do(t, http.MethodPost, fmt.Sprintf("/chats/%d/leave", chat.ID), f.token(t, u1), nil)
	if res.Code != http.StatusOK {
		t.Fatalf("leave failed with %d", res.Code)
	}

	if _, ok := f.state.chats[chat.ID]; ok {
		t.Fatal("an emptied chat must be collected")
	}
	if len(f.state.messages) != 0 {
		t.Fatal("messages of a collected chat must be gone")
	}
	if len(f.state.invitations) != 0 {
		t.Fatalf("invitations of a collected chat must be gone, %d remain", len(f.state.invitations))
	}
}

func TestRealtimeSubscribeAndDisconnect(t *testing.T) {
	f := newFixture(t)
	u1 := f.state.addUser("u1")
	u2 := f.state.addUser("u2")

	res := f.do(t, http.MethodPost, "/chats", f.token(t, u1), map[string]any{"name": "mine"})
	mine := decode[domain.Chat](t, res)
	res = f.do(t, http.MethodPost, "/chats", f.token(t, u2), map[string]any{"name": "theirs"})
	theirs := decode[domain.Chat](t, res)

	srv := httptest.NewServer(f.e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/realtime"
	header := http.Header{"Authorization": []string{"Bearer " + f.token(t, u1)}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	err = conn.WriteJSON(map[string]any{
		"type":  "listen",
		"chats": []int64{mine.ID, theirs.ID},
	})
	if err != nil {
		t.Fatalf("listen request failed: %v", err)
	}

	var sub []int64
	deadline := time.Now().Add(2 * time.Second)
	for {
		if got, ok := f.stream.lastSub(); ok {
			sub = got
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscription never reached the streamer")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(sub) != 1 || sub[0] != mine.ID {
		t.Fatalf("subscription must be filtered to the actor's chats, got %v", sub)
	}

	f.stream.events <- domain.Event{Type: "message", ChatID: mine.ID}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event domain.Event
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("reading event failed: %v", err)
	}
	if event.Type != "message" || event.ChatID != mine.ID {
		t.Fatalf("unexpected event: %+v", event)
	}

	// a clean close must tear the stream down without disturbing the server
	err = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
}
