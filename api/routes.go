package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/campushub/studyhub/auth"
	"github.com/campushub/studyhub/config"
	"github.com/campushub/studyhub/persistence"
	"github.com/campushub/studyhub/upload"
	"github.com/campushub/studyhub/ws"
)

// NewRouter wires the complete REST surface, the websocket entry point and
// the read-only static serving of the upload root.
func NewRouter(store persistence.Persister, verifier *auth.Verifier, relay *upload.Relay, hub *ws.Hub, cfg *config.Config) *mux.Router {
	authHandler := &AuthHandler{Store: store, Verifier: verifier, Relay: relay, Cfg: cfg}
	groupHandler := &GroupHandler{Store: store}
	messageHandler := &MessageHandler{Store: store, Relay: relay, Hub: hub}
	fileHandler := &FileHandler{Store: store, Relay: relay}
	meetingHandler := &MeetingHandler{Store: store}

	r := mux.NewRouter()
	r.Use(Logging)

	r.HandleFunc("/auth/register", authHandler.Register).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", authHandler.Login).Methods(http.MethodPost)
	r.HandleFunc("/auth/oidc", authHandler.LoginOIDC).Methods(http.MethodPost)

	protected := r.PathPrefix("/").Subrouter()
	protected.Use(BearerAuth(verifier))

	protected.HandleFunc("/auth/me", authHandler.Me).Methods(http.MethodGet)
	protected.HandleFunc("/auth/profile", authHandler.Me).Methods(http.MethodGet)
	protected.HandleFunc("/auth/update-profile", authHandler.UpdateProfile).Methods(http.MethodPut)
	protected.HandleFunc("/auth/update-password", authHandler.UpdatePassword).Methods(http.MethodPut)
	protected.HandleFunc("/auth/upload-avatar", authHandler.UploadAvatar).Methods(http.MethodPost)

	protected.HandleFunc("/groups/create", groupHandler.Create).Methods(http.MethodPost)
	protected.HandleFunc("/groups/all", groupHandler.All).Methods(http.MethodGet)
	protected.HandleFunc("/groups/my", groupHandler.My).Methods(http.MethodGet)
	protected.HandleFunc("/groups/join/{id:[0-9]+}", groupHandler.Join).Methods(http.MethodPost)
	protected.HandleFunc("/groups/leave/{id:[0-9]+}", groupHandler.Leave).Methods(http.MethodPost)
	protected.HandleFunc("/groups/info/{id:[0-9]+}", groupHandler.Info).Methods(http.MethodGet)

	protected.HandleFunc("/messages/send", messageHandler.Send).Methods(http.MethodPost)
	protected.HandleFunc("/messages/upload", messageHandler.Upload).Methods(http.MethodPost)
	protected.HandleFunc("/messages/{groupId:[0-9]+}", messageHandler.List).Methods(http.MethodGet)

	protected.HandleFunc("/files/group/{groupId:[0-9]+}", fileHandler.ListForGroup).Methods(http.MethodGet)
	protected.HandleFunc("/files/{fileId:[0-9]+}/download", fileHandler.Download).Methods(http.MethodGet)

	protected.HandleFunc("/meetings/my", meetingHandler.My).Methods(http.MethodGet)
	protected.HandleFunc("/meetings/create", meetingHandler.Create).Methods(http.MethodPost)

	// the websocket handshake authenticates on its own, it does not share
	// the bearer middleware
	r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		ws.ServeWs(hub, verifier, w, req)
	}).Methods(http.MethodGet)

	if relay != nil {
		r.PathPrefix("/uploads/").Handler(http.StripPrefix("/uploads/", http.FileServer(http.Dir(relay.Root()))))
	}

	return r
}
