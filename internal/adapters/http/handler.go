package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PabloGalante/chicha/internal/app/conversation"
	"github.com/PabloGalante/chicha/internal/app/dictation"
	"github.com/PabloGalante/chicha/internal/app/dispatch"
	"github.com/PabloGalante/chicha/internal/app/translation"
	"github.com/PabloGalante/chicha/internal/domain"
	"github.com/PabloGalante/chicha/internal/observability"
)

// ObjectSource serves uploaded blobs when they live in process memory.
type ObjectSource interface {
	Open(path string) ([]byte, string, error)
}

type Deps struct {
	Conversations *conversation.Service
	Translations  *translation.Service

	// Objects is optional; without it /objects/ is not routed.
	Objects ObjectSource

	SpeechLocale   string
	AllowedOrigins []string
}

type Server struct {
	conv    *conversation.Service
	tr      *translation.Service
	objects ObjectSource
	locale  string
	origins map[string]bool
}

func NewServer(deps Deps) http.Handler {
	s := &Server{
		conv:    deps.Conversations,
		tr:      deps.Translations,
		objects: deps.Objects,
		locale:  deps.SpeechLocale,
		origins: make(map[string]bool),
	}
	for _, o := range deps.AllowedOrigins {
		s.origins[o] = true
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /languages", s.handleLanguages)

	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)

	mux.HandleFunc("GET /sessions/{id}/composer", s.handleGetComposer)
	mux.HandleFunc("PUT /sessions/{id}/input", s.handleSetInput)
	mux.HandleFunc("POST /sessions/{id}/attachments", s.handleAddAttachments)
	mux.HandleFunc("DELETE /sessions/{id}/attachments/{attachmentID}", s.handleRemoveAttachment)

	mux.HandleFunc("POST /sessions/{id}/messages", s.handleSend)
	mux.HandleFunc("POST /sessions/{id}/search", s.handleSearch)
	mux.HandleFunc("POST /sessions/{id}/images", s.handleGenerateImage)

	mux.HandleFunc("POST /sessions/{id}/messages/{messageID}/translate", s.handleTranslate)
	mux.HandleFunc("POST /sessions/{id}/messages/{messageID}/revert", s.handleRevert)

	mux.HandleFunc("GET /sessions/{id}/dictation", s.handleDictation)

	if s.objects != nil {
		mux.HandleFunc("GET /objects/{path...}", s.handleObject)
	}

	return chainMiddlewares(mux, withLogging, withCORS, withRequestID)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type createSessionRequest struct {
	UserID string `json:"user_id"`
	Title  string `json:"title,omitempty"`
}

type createSessionResponse struct {
	Session sessionResponse  `json:"session"`
	Welcome *messageResponse `json:"welcome_message,omitempty"`
}

type sessionResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type messageResponse struct {
	ID           string              `json:"id"`
	SessionID    string              `json:"session_id"`
	Author       string              `json:"author"`
	Text         string              `json:"text"`
	Processing   bool                `json:"processing,omitempty"`
	Sources      []domain.Source     `json:"sources,omitempty"`
	ImageURLs    []string            `json:"image_urls,omitempty"`
	Location     *domain.Coordinates `json:"location,omitempty"`
	TranslatedTo string              `json:"translated_to,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
}

type getSessionResponse struct {
	Session  sessionResponse   `json:"session"`
	Messages []messageResponse `json:"messages"`
}

type textRequest struct {
	Text *string `json:"text,omitempty"`
}

type attachmentResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	Preview     string `json:"preview,omitempty"`
}

type rejectedFile struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

type addAttachmentsResponse struct {
	Added    []attachmentResponse `json:"added"`
	Rejected []rejectedFile       `json:"rejected,omitempty"`
}

type composerResponse struct {
	Input         string                `json:"input"`
	Attachments   []attachmentResponse  `json:"attachments"`
	HasContent    bool                  `json:"has_content"`
	Busy          bool                  `json:"busy"`
	Phase         string                `json:"phase"`
	Dictation     *dictation.Snapshot   `json:"dictation,omitempty"`
	Notifications []domain.Notification `json:"notifications"`
}

type dispatchResponse struct {
	Kind     string            `json:"kind"`
	Failed   bool              `json:"failed"`
	Error    string            `json:"error,omitempty"`
	Messages []messageResponse `json:"messages"`
	Composer composerResponse  `json:"composer"`
}

type translateRequest struct {
	Language string `json:"language"`
}

// ─────────────────────────────────────────────
// Sessions
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"languages": translation.Supported()})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		badRequest(w, "user_id is required")
		return
	}

	out, err := s.conv.StartSession(r.Context(), conversation.StartSessionInput{
		UserID: domain.UserID(req.UserID),
		Title:  req.Title,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	welcome := toMessageResponse(out.Welcome)
	writeJSON(w, http.StatusCreated, createSessionResponse{
		Session: toSessionResponse(out.Session),
		Welcome: &welcome,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		badRequest(w, "user_id is required")
		return
	}

	sessions, err := s.conv.ListSessions(r.Context(), domain.UserID(userID), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, toSessionResponse(sess))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctx, id := sessionContext(r)

	session, msgs, err := s.conv.GetSessionTimeline(ctx, id, queryInt(r, "limit", 0))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, getSessionResponse{
		Session:  toSessionResponse(session),
		Messages: toMessagesResponse(msgs),
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	ctx, id := sessionContext(r)

	if err := s.conv.DeleteSession(ctx, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─────────────────────────────────────────────
// Composer
// ─────────────────────────────────────────────

func (s *Server) handleGetComposer(w http.ResponseWriter, r *http.Request) {
	ctx, id := sessionContext(r)

	c, err := s.conv.Composer(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toComposerResponse(c))
}

func (s *Server) handleSetInput(w http.ResponseWriter, r *http.Request) {
	ctx, id := sessionContext(r)

	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == nil {
		badRequest(w, "text is required")
		return
	}

	c, err := s.conv.Composer(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	c.Dispatcher.SetInput(*req.Text)
	writeJSON(w, http.StatusOK, toComposerResponse(c))
}

func (s *Server) handleAddAttachments(w http.ResponseWriter, r *http.Request) {
	ctx, id := sessionContext(r)

	c, err := s.conv.Composer(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	const maxForm = dispatch.MaxAttachments*(dispatch.MaxAttachmentBytes+1) + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, maxForm)
	if err := r.ParseMultipartForm(maxForm); err != nil {
		badRequest(w, "expected a multipart form with file parts")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		badRequest(w, "at least one file part is required")
		return
	}

	resp := addAttachmentsResponse{Added: []attachmentResponse{}}
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			resp.Rejected = append(resp.Rejected, rejectedFile{Name: fh.Filename, Error: err.Error()})
			continue
		}
		// One byte past the limit is enough for the size check to reject it.
		data, err := io.ReadAll(io.LimitReader(f, dispatch.MaxAttachmentBytes+1))
		f.Close()
		if err != nil {
			resp.Rejected = append(resp.Rejected, rejectedFile{Name: fh.Filename, Error: err.Error()})
			continue
		}

		contentType := fh.Header.Get("Content-Type")
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = http.DetectContentType(data)
		}

		a, err := c.Dispatcher.AddAttachment(ctx, fh.Filename, contentType, data)
		if err != nil {
			resp.Rejected = append(resp.Rejected, rejectedFile{Name: fh.Filename, Error: err.Error()})
			continue
		}
		resp.Added = append(resp.Added, toAttachmentResponse(a))
	}

	status := http.StatusOK
	if len(resp.Added) == 0 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleRemoveAttachment(w http.ResponseWriter, r *http.Request) {
	ctx, id := sessionContext(r)

	c, err := s.conv.Composer(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !c.Dispatcher.RemoveAttachment(r.PathValue("attachmentID")) {
		notFound(w, "attachment not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─────────────────────────────────────────────
// Dispatch
// ─────────────────────────────────────────────

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	s.runDispatch(w, r, (*dispatch.Dispatcher).Send)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.runDispatch(w, r, (*dispatch.Dispatcher).Search)
}

func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	s.runDispatch(w, r, (*dispatch.Dispatcher).GenerateImage)
}

// runDispatch optionally replaces the input with the request's text, then
// runs action on the session's dispatcher.
func (s *Server) runDispatch(
	w http.ResponseWriter,
	r *http.Request,
	action func(*dispatch.Dispatcher, context.Context) (*dispatch.Outcome, error),
) {
	ctx, id := sessionContext(r)

	var req textRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			badRequest(w, "invalid JSON body")
			return
		}
	}

	c, err := s.conv.Composer(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Text != nil {
		if c.Dispatcher.Busy() {
			writeError(w, domain.ErrBusy)
			return
		}
		c.Dispatcher.SetInput(*req.Text)
	}

	out, err := action(c.Dispatcher, ctx)
	if err != nil {
		writeError(w, err)
		return
	}

	msgs, err := s.conv.GetMessages(ctx, id, out.Messages)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := dispatchResponse{
		Kind:     string(out.Kind),
		Failed:   out.Failed(),
		Messages: toMessagesResponse(msgs),
		Composer: toComposerResponse(c),
	}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ─────────────────────────────────────────────
// Translation
// ─────────────────────────────────────────────

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	ctx, id := sessionContext(r)

	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	msg, err := s.tr.Translate(ctx, id, domain.MessageID(r.PathValue("messageID")), req.Language)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageResponse(msg))
}

func (s *Server) handleRevert(w http.ResponseWriter, r *http.Request) {
	ctx, id := sessionContext(r)

	msg, err := s.tr.Revert(ctx, id, domain.MessageID(r.PathValue("messageID")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageResponse(msg))
}

// ─────────────────────────────────────────────
// Objects
// ─────────────────────────────────────────────

func (s *Server) handleObject(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.objects.Open(r.PathValue("path"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ─────────────────────────────────────────────
// Conversion Helpers
// ─────────────────────────────────────────────

func toSessionResponse(s *domain.Session) sessionResponse {
	title := s.Title
	if title == "" {
		title = "New Chat"
	}
	return sessionResponse{
		ID:        string(s.ID),
		UserID:    string(s.UserID),
		Title:     title,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func toMessageResponse(m *domain.Message) messageResponse {
	return messageResponse{
		ID:           string(m.ID),
		SessionID:    string(m.SessionID),
		Author:       string(m.Author),
		Text:         m.Text,
		Processing:   m.Processing,
		Sources:      m.Sources,
		ImageURLs:    m.ImageURLs,
		Location:     m.Location,
		TranslatedTo: m.TranslatedTo,
		CreatedAt:    m.CreatedAt,
	}
}

func toMessagesResponse(msgs []*domain.Message) []messageResponse {
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	return out
}

func toAttachmentResponse(a dispatch.Attachment) attachmentResponse {
	return attachmentResponse{
		ID:          a.ID,
		Name:        a.Name,
		ContentType: a.ContentType,
		Size:        a.Size(),
		Preview:     a.Preview,
	}
}

// toComposerResponse also drains the composer's notifications.
func toComposerResponse(c *conversation.Composer) composerResponse {
	d := c.Dispatcher
	resp := composerResponse{
		Input:         d.Input(),
		Attachments:   []attachmentResponse{},
		HasContent:    d.HasContent(),
		Busy:          d.Busy(),
		Phase:         d.Phase().String(),
		Notifications: c.Inbox.Drain(),
	}
	for _, a := range d.Attachments() {
		resp.Attachments = append(resp.Attachments, toAttachmentResponse(a))
	}
	if sess := c.Dictation(); sess != nil {
		snap := sess.Snapshot()
		resp.Dictation = &snap
	}
	return resp
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

// sessionContext reads {id} and tags the request context with it.
func sessionContext(r *http.Request) (context.Context, domain.SessionID) {
	id := r.PathValue("id")
	return observability.WithSessionID(r.Context(), id), domain.SessionID(id)
}

func queryInt(r *http.Request, key string, def int) int {
	if n, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil && n >= 0 {
		return n
	}
	return def
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps error kinds to status codes. Only validation errors echo
// their message; everything unexpected is a bare 500.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		notFound(w, "not found")
	case errors.Is(err, dispatch.ErrClosed), errors.Is(err, dictation.ErrClosed):
		notFound(w, "session closed")
	case errors.Is(err, domain.ErrValidation):
		badRequest(w, strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": "))
	case errors.Is(err, domain.ErrBusy):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrTranslation):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "translation failed"})
	default:
		internalError(w, err)
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

func notFound(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": msg,
	})
}

func internalError(w http.ResponseWriter, err error) {
	observability.Logger().Error("request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "internal server error",
	})
}
