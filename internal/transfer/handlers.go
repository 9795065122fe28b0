package transfer

import (
	"net/http"

	"github.com/google/uuid"

	"codedrop-go/internal/api"
	"codedrop-go/internal/compress"
	"codedrop-go/internal/models"
	"codedrop-go/internal/session"
	"codedrop-go/internal/validation"
)

// Handler exposes the anonymous transfer surface. Every operation except
// verify rides on the session cookie; successful calls re-issue it so the
// browser's copy never goes stale.
type Handler struct {
	sessions session.Service
	transfer Service
	compress compress.Service
}

func NewHandler(sessions session.Service, transfer Service, compressService compress.Service) *Handler {
	return &Handler{sessions: sessions, transfer: transfer, compress: compressService}
}

type verifyRequest struct {
	Code string `json:"code" validate:"required,sharecode"`
}

type verifyResponse struct {
	SessionID uuid.UUID            `json:"session_id"`
	Kind      models.CodeKind      `json:"kind"`
	Status    models.SessionStatus `json:"status"`
}

// HandleVerify exchanges a share code for a fresh fingerprinted session.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := api.Decode(r, &req); err != nil {
		api.FailValidation(w, nil)
		return
	}
	if err := validation.Validate(&req); err != nil {
		api.FailValidation(w, validation.FormatError(err))
		return
	}

	sess, c, err := h.sessions.Verify(r.Context(), req.Code)
	if err != nil {
		api.Fail(w, err)
		return
	}

	session.IssueCookie(w, sess)
	api.Success(w, &verifyResponse{
		SessionID: sess.ID,
		Kind:      c.Kind,
		Status:    sess.Status,
	})
}

// HandleHeartbeat touches the session's liveness clock.
func (h *Handler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	creds, err := session.CredentialsFromRequest(r)
	if err != nil {
		api.Fail(w, err)
		return
	}

	sess, err := h.sessions.Heartbeat(r.Context(), creds)
	if err != nil {
		session.ClearCookie(w)
		api.Fail(w, err)
		return
	}

	session.IssueCookie(w, sess)
	api.Success(w, nil)
}

// HandleStartUpload runs the compound PICKING to UPLOADING transition.
func (h *Handler) HandleStartUpload(w http.ResponseWriter, r *http.Request) {
	creds, err := session.CredentialsFromRequest(r)
	if err != nil {
		api.Fail(w, err)
		return
	}

	res, err := h.transfer.StartUpload(r.Context(), creds)
	if err != nil {
		api.Fail(w, err)
		return
	}
	api.Success(w, res)
}

// HandleUploadURL issues a one-time upload destination, or registers a
// folder marker immediately.
func (h *Handler) HandleUploadURL(w http.ResponseWriter, r *http.Request) {
	creds, err := session.CredentialsFromRequest(r)
	if err != nil {
		api.Fail(w, err)
		return
	}

	var req UploadURLRequest
	if err := api.Decode(r, &req); err != nil {
		api.FailValidation(w, nil)
		return
	}
	if err := validation.Validate(&req); err != nil {
		api.FailValidation(w, validation.FormatError(err))
		return
	}

	res, err := h.transfer.GenerateUploadURL(r.Context(), creds, &req)
	if err != nil {
		api.Fail(w, err)
		return
	}
	api.Success(w, res)
}

type createFileRequest struct {
	UploadToken uuid.UUID `json:"upload_token" validate:"required"`
}

// HandleCreateFile verifies an upload by consuming its one-time token.
func (h *Handler) HandleCreateFile(w http.ResponseWriter, r *http.Request) {
	creds, err := session.CredentialsFromRequest(r)
	if err != nil {
		api.Fail(w, err)
		return
	}

	var req createFileRequest
	if err := api.Decode(r, &req); err != nil || req.UploadToken == uuid.Nil {
		api.FailValidation(w, nil)
		return
	}

	file, err := h.transfer.CreateFileRecord(r.Context(), creds, req.UploadToken)
	if err != nil {
		api.Fail(w, err)
		return
	}
	api.Success(w, file)
}

// HandleCompleteUpload closes the batch and surfaces the download code.
func (h *Handler) HandleCompleteUpload(w http.ResponseWriter, r *http.Request) {
	creds, err := session.CredentialsFromRequest(r)
	if err != nil {
		api.Fail(w, err)
		return
	}

	res, err := h.transfer.CompleteUpload(r.Context(), creds)
	if err != nil {
		api.Fail(w, err)
		return
	}
	api.Success(w, res)
}

// HandleConfig finalizes the transfer's settings and completes the session.
func (h *Handler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	creds, err := session.CredentialsFromRequest(r)
	if err != nil {
		api.Fail(w, err)
		return
	}

	var req ConfigRequest
	if err := api.Decode(r, &req); err != nil {
		api.FailValidation(w, nil)
		return
	}
	if err := validation.Validate(&req); err != nil {
		api.FailValidation(w, validation.FormatError(err))
		return
	}

	if err := h.transfer.SubmitConfig(r.Context(), creds, &req); err != nil {
		api.Fail(w, err)
		return
	}
	api.Success(w, nil)
}

// HandleListFiles enumerates the files behind the session's code.
func (h *Handler) HandleListFiles(w http.ResponseWriter, r *http.Request) {
	creds, err := session.CredentialsFromRequest(r)
	if err != nil {
		api.Fail(w, err)
		return
	}

	files, err := h.transfer.ListFiles(r.Context(), creds)
	if err != nil {
		api.Fail(w, err)
		return
	}
	api.Success(w, files)
}

type downloadURLsRequest struct {
	FileIDs []uuid.UUID `json:"file_ids" validate:"required,min=1"`
}

// HandleDownloadURLs issues pre-signed retrieval URLs for selected files.
func (h *Handler) HandleDownloadURLs(w http.ResponseWriter, r *http.Request) {
	creds, err := session.CredentialsFromRequest(r)
	if err != nil {
		api.Fail(w, err)
		return
	}

	var req downloadURLsRequest
	if err := api.Decode(r, &req); err != nil || len(req.FileIDs) == 0 {
		api.FailValidation(w, nil)
		return
	}

	urls, err := h.transfer.GenerateDownloadURLs(r.Context(), creds, req.FileIDs)
	if err != nil {
		api.Fail(w, err)
		return
	}
	api.Success(w, urls)
}

var downloadStatuses = []models.SessionStatus{models.SessionDownloading, models.SessionCompleted}

// HandleCompress starts or polls the code's archive assembly job.
func (h *Handler) HandleCompress(w http.ResponseWriter, r *http.Request) {
	creds, err := session.CredentialsFromRequest(r)
	if err != nil {
		api.Fail(w, err)
		return
	}

	_, c, err := h.sessions.Authorize(r.Context(), creds,
		downloadStatuses, []models.CodeKind{models.CodeKindDownload})
	if err != nil {
		api.Fail(w, err)
		return
	}

	res, err := h.compress.Request(r.Context(), c)
	if err != nil {
		api.Fail(w, err)
		return
	}
	api.Success(w, res)
}
