package handlers

import "net/http"

type Handlers struct {
	Auth          *AuthHandler
	Users         *UserHandler
	Conversations *ConversationHandler
	Messages      *MessageHandler
	Groups        *GroupHandler
	Media         *MediaHandler
}

// Register mounts the REST API on mux. auth guards every route except
// register/login and media; limit is applied after auth.
func Register(mux *http.ServeMux, h Handlers, auth, limit func(http.Handler) http.Handler) {
	protected := func(f http.HandlerFunc) http.Handler {
		return auth(limit(f))
	}

	// Public
	mux.HandleFunc("POST /api/v1/auth/register", h.Auth.Register)
	mux.HandleFunc("POST /api/v1/auth/login", h.Auth.Login)
	mux.HandleFunc("GET /media/{publicId...}", h.Media.Get)

	// Users
	mux.Handle("GET /api/v1/users/me", protected(h.Users.Me))
	mux.Handle("GET /api/v1/users/blocked", protected(h.Users.ListBlocked))
	mux.Handle("GET /api/v1/users/{id}", protected(h.Users.Get))
	mux.Handle("POST /api/v1/users/{id}/block", protected(h.Users.Block))
	mux.Handle("DELETE /api/v1/users/{id}/block", protected(h.Users.Unblock))

	// Conversations
	mux.Handle("GET /api/v1/conversations", protected(h.Conversations.List))
	mux.Handle("POST /api/v1/conversations/direct", protected(h.Conversations.OpenDirect))
	mux.Handle("GET /api/v1/conversations/{id}/messages", protected(h.Conversations.Messages))
	mux.Handle("GET /api/v1/conversations/{id}/messages/search", protected(h.Conversations.Search))
	mux.Handle("POST /api/v1/conversations/{id}/pin", protected(h.Conversations.Pin))
	mux.Handle("DELETE /api/v1/conversations/{id}/pin", protected(h.Conversations.Unpin))
	mux.Handle("POST /api/v1/conversations/{id}/mute", protected(h.Conversations.Mute))
	mux.Handle("DELETE /api/v1/conversations/{id}/mute", protected(h.Conversations.Unmute))
	mux.Handle("POST /api/v1/conversations/{id}/archive", protected(h.Conversations.Archive))
	mux.Handle("DELETE /api/v1/conversations/{id}/archive", protected(h.Conversations.Unarchive))
	mux.Handle("POST /api/v1/conversations/{id}/clear", protected(h.Conversations.Clear))
	mux.Handle("DELETE /api/v1/conversations/{id}", protected(h.Conversations.Delete))

	// Messages
	mux.Handle("POST /api/v1/messages", protected(h.Messages.Send))
	mux.Handle("POST /api/v1/messages/media", protected(h.Messages.SendMedia))
	mux.Handle("POST /api/v1/messages/forward", protected(h.Messages.Forward))
	mux.Handle("GET /api/v1/messages/starred", protected(h.Messages.Starred))
	mux.Handle("PATCH /api/v1/messages/{id}", protected(h.Messages.Edit))
	mux.Handle("DELETE /api/v1/messages/{id}", protected(h.Messages.Delete))
	mux.Handle("POST /api/v1/messages/{id}/reactions", protected(h.Messages.React))
	mux.Handle("PUT /api/v1/messages/{id}/star", protected(h.Messages.Star))
	mux.Handle("DELETE /api/v1/messages/{id}/star", protected(h.Messages.Unstar))
	mux.Handle("POST /api/v1/messages/{id}/status", protected(h.Messages.UpdateStatus))

	// Groups
	mux.Handle("POST /api/v1/groups", protected(h.Groups.Create))
	mux.Handle("GET /api/v1/groups/{id}", protected(h.Groups.Get))
	mux.Handle("PATCH /api/v1/groups/{id}", protected(h.Groups.Update))
	mux.Handle("DELETE /api/v1/groups/{id}", protected(h.Groups.Delete))
	mux.Handle("POST /api/v1/groups/{id}/members", protected(h.Groups.AddMembers))
	mux.Handle("POST /api/v1/groups/{id}/members/remove", protected(h.Groups.RemoveMembers))
	mux.Handle("PUT /api/v1/groups/{id}/members/{uid}/role", protected(h.Groups.UpdateRole))
	mux.Handle("POST /api/v1/groups/{id}/leave", protected(h.Groups.Leave))
}
