package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/campushub/studyhub/auth"
	"github.com/campushub/studyhub/config"
	"github.com/campushub/studyhub/persistence"
	"github.com/campushub/studyhub/types"
	"github.com/campushub/studyhub/upload"
)

// allowed avatar content types
var avatarTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
}

type AuthHandler struct {
	Store    persistence.Persister
	Verifier *auth.Verifier
	Relay    *upload.Relay
	Cfg      *config.Config
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	School   string `json:"school"`
	Program  string `json:"program"`
	Year     int    `json:"year"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string      `json:"token"`
	User  *types.User `json:"user"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	req := registerRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "name, email and password are required")
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	user := &types.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		School:       req.School,
		Program:      req.Program,
		Year:         req.Year,
		Tags:         make(types.JSONStringMap),
		CreatedAt:    time.Now(),
	}
	if err := h.Store.CreateUser(user); err != nil {
		respondStoreError(w, err)
		return
	}
	token, err := h.Verifier.Issue(user.Id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusCreated, tokenResponse{Token: token, User: user})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	creds := credentials{}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := h.Store.GetUserByEmail(creds.Email)
	if err != nil || !auth.CheckPassword(user.PasswordHash, creds.Password) {
		respondError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	token, err := h.Verifier.Issue(user.Id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, tokenResponse{Token: token, User: user})
}

// LoginOIDC exchanges a verified provider id_token for a local token,
// creating the local account on first contact.
func (h *AuthHandler) LoginOIDC(w http.ResponseWriter, r *http.Request) {
	req := struct {
		IdToken  string `json:"id_token"`
		Provider string `json:"provider"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	email, err := auth.AuthenticateOIDC(r.Context(), req.IdToken, req.Provider, h.Cfg)
	if err != nil || email == "" {
		respondError(w, http.StatusUnauthorized, "invalid or expired credential")
		return
	}
	user, err := h.Store.GetUserByEmail(email)
	if errors.Is(err, persistence.ErrNotFound) {
		name := email
		if i := strings.Index(email, "@"); i > 0 {
			name = email[:i]
		}
		user = &types.User{
			Name:      name,
			Email:     email,
			Tags:      make(types.JSONStringMap),
			CreatedAt: time.Now(),
		}
		err = h.Store.CreateUser(user)
	}
	if err != nil {
		respondStoreError(w, err)
		return
	}
	token, err := h.Verifier.Issue(user.Id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, tokenResponse{Token: token, User: user})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.Store.GetUser(UserIdFrom(r))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

type profileUpdate struct {
	Name    *string `json:"name"`
	School  *string `json:"school"`
	Program *string `json:"program"`
	Year    *int    `json:"year"`
}

func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	req := profileUpdate{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := h.Store.GetUser(UserIdFrom(r))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if req.Name != nil {
		if *req.Name == "" {
			respondError(w, http.StatusBadRequest, "name must not be empty")
			return
		}
		user.Name = *req.Name
	}
	if req.School != nil {
		user.School = *req.School
	}
	if req.Program != nil {
		user.Program = *req.Program
	}
	if req.Year != nil {
		user.Year = *req.Year
	}
	if err := h.Store.UpdateUser(user); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	req := struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.NewPassword == "" {
		respondError(w, http.StatusBadRequest, "new password is required")
		return
	}
	user, err := h.Store.GetUser(UserIdFrom(r))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		respondError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	user.PasswordHash = hash
	if err := h.Store.UpdateUser(user); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

func (h *AuthHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "could not parse multipart form")
		return
	}
	file, header, err := r.FormFile("avatar")
	if err != nil {
		respondError(w, http.StatusBadRequest, "avatar file is required")
		return
	}
	defer file.Close()
	if _, ok := avatarTypes[header.Header.Get("Content-Type")]; !ok {
		respondError(w, http.StatusBadRequest, "only jpeg, png, gif and webp images are allowed")
		return
	}
	user, err := h.Store.GetUser(UserIdFrom(r))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	stored, err := h.Relay.Store("avatars", upload.FixEncoding(header.Filename), file)
	if errors.Is(err, upload.ErrTooLarge) {
		respondError(w, http.StatusBadRequest, "file exceeds the maximum upload size")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not store avatar")
		return
	}
	user.AvatarPath = stored
	if err := h.Store.UpdateUser(user); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"avatar_url": "/uploads/" + stored})
}
