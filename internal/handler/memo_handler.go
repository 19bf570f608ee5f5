package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/memoman/internal/idx"
	"github.com/hitoshi/memoman/internal/memo"
	"github.com/hitoshi/memoman/internal/middleware"
	"github.com/hitoshi/memoman/internal/model"
	"github.com/hitoshi/memoman/internal/security"
)

// MemoServiceInterface はメモハンドラーが必要とするサービスインターフェース。
// memo.Serviceが満たす。見つからないメモはnilで返る。
type MemoServiceInterface interface {
	CreateMemo(ctx context.Context, userID string, in memo.CreateInput) (*model.Memo, error)
	GetMemo(ctx context.Context, id, userID string) (*model.Memo, error)
	ListMemos(ctx context.Context, userID string, page, pageSize int) (*model.MemoPage, error)
	UpdateMemo(ctx context.Context, id, userID string, in memo.UpdateInput) (*model.Memo, error)
	ChangeStatus(ctx context.Context, id, userID string, status model.MemoStatus) (*model.Memo, error)
	DeleteMemo(ctx context.Context, id, userID string) (bool, error)
}

// MemoHandler はメモ管理のHTTPハンドラー。
type MemoHandler struct {
	service   MemoServiceInterface
	sanitizer security.ContentSanitizerService
	now       func() time.Time
}

// NewMemoHandler はMemoHandlerを生成する。
func NewMemoHandler(service MemoServiceInterface, sanitizer security.ContentSanitizerService) *MemoHandler {
	return &MemoHandler{
		service:   service,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

type createMemoRequest struct {
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// updateMemoRequest は部分更新リクエスト。省略またはnullのフィールドは変更しない。
type updateMemoRequest struct {
	Title       *string    `json:"title"`
	Content     *string    `json:"content"`
	Status      *string    `json:"status"`
	ExpiresAt   *time.Time `json:"expires_at"`
	ClearExpiry bool       `json:"clear_expiry"`
}

type changeStatusRequest struct {
	Status string `json:"status"`
}

// memoResponse はメモのAPIレスポンス。
type memoResponse struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Content            string     `json:"content"`
	ContentHTML        string     `json:"content_html"`
	Status             string     `json:"status"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	CompletedAt        *time.Time `json:"completed_at"`
	ExpiresAt          *time.Time `json:"expires_at"`
	IsExpired          bool       `json:"is_expired"`
	AllowedTransitions []string   `json:"allowed_transitions"`
}

type memoListResponse struct {
	Items      []memoResponse `json:"items"`
	Page       int            `json:"page"`
	PerPage    int            `json:"per_page"`
	Total      int            `json:"total"`
	TotalPages int            `json:"total_pages"`
	HasNext    bool           `json:"has_next"`
	HasPrev    bool           `json:"has_prev"`
}

func (h *MemoHandler) toMemoResponse(m *model.Memo) memoResponse {
	allowed := model.AllowedTransitions(m.Status)
	transitions := make([]string, len(allowed))
	for i, s := range allowed {
		transitions[i] = string(s)
	}

	return memoResponse{
		ID:                 m.ID,
		Title:              m.Title,
		Content:            m.Content,
		ContentHTML:        h.sanitizer.RenderContent(m.Content),
		Status:             string(m.Status),
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
		CompletedAt:        m.CompletedAt,
		ExpiresAt:          m.ExpiresAt,
		IsExpired:          m.IsExpired(h.now()),
		AllowedTransitions: transitions,
	}
}

// requireUser はコンテキストからユーザーIDを取得する。失敗時は401を書き込む。
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return "", false
	}
	return userID, true
}

// memoIDParam はURLのメモIDを正規化する。形式不正は存在しないメモと同じ404を返す。
func memoIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "id")
	id, err := idx.Parse(raw)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewMemoNotFoundError(raw))
		return "", false
	}
	return id, true
}

// validateFormFields はタイトルの文字種と本文の危険なタグを検証する。
func validateFormFields(title, content *string) error {
	if title != nil {
		if err := security.ValidateTitleChars(*title); err != nil {
			return err
		}
	}
	if content != nil {
		if err := security.ValidateContentTags(*content); err != nil {
			return err
		}
	}
	return nil
}

// ListMemos はメモ一覧を返す。
// GET /api/memos?page=1&per_page=10
func (h *MemoHandler) ListMemos(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", memo.DefaultPageSize)

	result, err := h.service.ListMemos(r.Context(), userID, page, perPage)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	items := make([]memoResponse, len(result.Items))
	for i, m := range result.Items {
		items[i] = h.toMemoResponse(m)
	}

	writeJSON(w, http.StatusOK, memoListResponse{
		Items:      items,
		Page:       result.Page,
		PerPage:    result.PageSize,
		Total:      result.Total,
		TotalPages: result.TotalPages(),
		HasNext:    result.HasNext(),
		HasPrev:    result.HasPrev(),
	})
}

// CreateMemo はメモを作成する。
// POST /api/memos
func (h *MemoHandler) CreateMemo(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req createMemoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidRequest(w)
		return
	}

	if err := validateFormFields(&req.Title, &req.Content); err != nil {
		handleServiceError(w, err)
		return
	}

	in := memo.CreateInput{
		Title:     req.Title,
		Content:   req.Content,
		ExpiresAt: req.ExpiresAt,
	}
	if req.Status != "" {
		status, err := model.ParseMemoStatus(req.Status)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		in.Status = status
	}

	m, err := h.service.CreateMemo(r.Context(), userID, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Location", "/api/memos/"+m.ID)
	writeJSON(w, http.StatusCreated, h.toMemoResponse(m))
}

// GetMemo はメモを1件返す。
// GET /api/memos/{id}
func (h *MemoHandler) GetMemo(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := memoIDParam(w, r)
	if !ok {
		return
	}

	m, err := h.service.GetMemo(r.Context(), id, userID)
	h.writeMemoResult(w, id, m, err)
}

// UpdateMemo はメモを部分更新する。
// PATCH /api/memos/{id}
func (h *MemoHandler) UpdateMemo(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := memoIDParam(w, r)
	if !ok {
		return
	}

	var req updateMemoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidRequest(w)
		return
	}

	if err := validateFormFields(req.Title, req.Content); err != nil {
		handleServiceError(w, err)
		return
	}

	in := memo.UpdateInput{
		Title:       req.Title,
		Content:     req.Content,
		ExpiresAt:   req.ExpiresAt,
		ClearExpiry: req.ClearExpiry,
	}
	if req.Status != nil {
		status, err := model.ParseMemoStatus(*req.Status)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		in.Status = &status
	}

	m, err := h.service.UpdateMemo(r.Context(), id, userID, in)
	h.writeMemoResult(w, id, m, err)
}

// ChangeStatus はメモのステータスを変更する。
// POST /api/memos/{id}/status
func (h *MemoHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := memoIDParam(w, r)
	if !ok {
		return
	}

	var req changeStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidRequest(w)
		return
	}
	status, err := model.ParseMemoStatus(req.Status)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	m, err := h.service.ChangeStatus(r.Context(), id, userID, status)
	h.writeMemoResult(w, id, m, err)
}

// DeleteMemo はメモを削除する。
// DELETE /api/memos/{id}
func (h *MemoHandler) DeleteMemo(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := memoIDParam(w, r)
	if !ok {
		return
	}

	deleted, err := h.service.DeleteMemo(r.Context(), id, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if !deleted {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewMemoNotFoundError(id))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeMemoResult はサービスの戻り値をレスポンスに変換する。nilのメモは404。
func (h *MemoHandler) writeMemoResult(w http.ResponseWriter, id string, m *model.Memo, err error) {
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if m == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewMemoNotFoundError(id))
		return
	}
	writeJSON(w, http.StatusOK, h.toMemoResponse(m))
}

type memoStatusesResponse struct {
	Statuses    []string            `json:"statuses"`
	Transitions map[string][]string `json:"transitions"`
}

// MemoStatuses はステータス一覧と遷移表を返す。
// GET /api/memo-statuses
func (h *MemoHandler) MemoStatuses(w http.ResponseWriter, r *http.Request) {
	resp := memoStatusesResponse{
		Statuses:    []string{},
		Transitions: map[string][]string{},
	}
	for _, s := range model.MemoStatuses() {
		resp.Statuses = append(resp.Statuses, string(s))
		next := []string{}
		for _, t := range model.AllowedTransitions(s) {
			next = append(next, string(t))
		}
		resp.Transitions[string(s)] = next
	}
	writeJSON(w, http.StatusOK, resp)
}

// queryInt はクエリパラメータを整数として読む。不正な値はdefにする。
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
