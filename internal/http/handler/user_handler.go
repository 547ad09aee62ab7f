package handler

import (
	"errors"
	"net/http"

	"go-identity-service/internal/http/middleware"
	"go-identity-service/internal/http/response"
	"go-identity-service/internal/repository"
	"go-identity-service/internal/service"
)

type UserHandler struct {
	identities repository.ExternalIdentityRepository
	icons      *service.IconStorageService
}

func NewUserHandler(identities repository.ExternalIdentityRepository, icons *service.IconStorageService) *UserHandler {
	return &UserHandler{identities: identities, icons: icons}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	linked, err := h.identities.ListByUserID(user.ID)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to load linked providers", nil)
		return
	}
	providers := make([]string, 0, len(linked))
	for _, identity := range linked {
		providers = append(providers, identity.Provider)
	}

	response.JSON(w, r, http.StatusOK, map[string]any{
		"user":             user,
		"has_password":     user.HasPassword(),
		"linked_providers": providers,
	})
}

func (h *UserHandler) UploadIcon(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	// 6MB form ceiling leaves headroom over the 5MB object cap so the
	// service can return its own error instead of a parse failure.
	if err := r.ParseMultipartForm(6 << 20); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "failed to parse multipart form", nil)
		return
	}
	file, header, err := r.FormFile("icon")
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "icon file is required", nil)
		return
	}
	defer func() { _ = file.Close() }()

	iconURL, err := h.icons.UploadIcon(r.Context(), user, file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrIconTooBig):
			response.Error(w, r, http.StatusBadRequest, "FILE_TOO_LARGE", "icon exceeds 5MB limit", nil)
		case errors.Is(err, service.ErrInvalidIconType):
			response.Error(w, r, http.StatusBadRequest, "INVALID_FILE_TYPE", "only JPEG and PNG icons are allowed", nil)
		default:
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to upload icon", nil)
		}
		return
	}

	response.JSON(w, r, http.StatusOK, map[string]any{"icon_url": iconURL})
}

func (h *UserHandler) DeleteIcon(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	if err := h.icons.DeleteIcon(r.Context(), user); err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to delete icon", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"deleted": true})
}
