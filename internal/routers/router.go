package routers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/anirudh-why/codeHub/internal/api"
)

func New(h *api.Handlers) http.Handler {
	r := chi.NewRouter()

	r.Get("/api/v1/healthz", h.Health)

	r.Post("/api/workspaces", h.CreateWorkspace)
	r.Delete("/api/workspaces/{roomId}", h.DeleteWorkspace)
	r.Post("/api/workspaces/{roomId}/leave", h.LeaveWorkspace)
	r.Get("/api/dashboard/{email}", h.Dashboard)

	r.Get("/api/rooms/{roomId}", h.GetWorkspace)
	r.Get("/api/rooms/{roomId}/files", h.GetFileTree)
	r.Post("/api/rooms/{roomId}/files", h.CreateFile)
	r.Post("/api/rooms/{roomId}/folders", h.CreateFolder)

	r.Get("/api/files/{fileId}", h.GetFile)
	r.Put("/api/files/{fileId}", h.UpdateFile)
	r.Delete("/api/files/{fileId}", h.DeleteFile)
	r.Delete("/api/folders/{folderId}", h.DeleteFolder)

	r.Get("/ws", h.CollabWS)

	return r
}
