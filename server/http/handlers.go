package http

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/samzhu/ragkit/chat"
	"github.com/samzhu/ragkit/document"
	"github.com/samzhu/ragkit/llm"
	"github.com/samzhu/ragkit/memory"
	"github.com/samzhu/ragkit/rag"
	"github.com/samzhu/ragkit/tools"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Vectors int    `json:"vectors"`
}

func (s *Server) handleHealth(c echo.Context) error {
	n, err := s.pipeline.Store().Len(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "degraded"})
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Vectors: n})
}

// ChatRequest is the request body for POST /chat.
type ChatRequest struct {
	Message   string         `json:"message"`
	SessionID string         `json:"session_id,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
	// RAG grounds the answer in retrieved chunks.
	RAG       bool     `json:"rag,omitempty"`
	TopK      int      `json:"top_k,omitempty"`
	Functions []string `json:"functions,omitempty"`
	System    string   `json:"system,omitempty"`
	// Model overrides the configured chat model for this message.
	Model string `json:"model,omitempty"`
}

// ChatResponse is the response body for POST /chat.
type ChatResponse struct {
	Message   string         `json:"message"`
	SessionID string         `json:"session_id"`
	Sources   []SearchResult `json:"sources,omitempty"`
}

func (s *Server) handleChat(c echo.Context) error {
	if s.chat == nil {
		return rag.ErrNoChat
	}
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	ctx := c.Request().Context()

	history := memory.NewLog(s.config.HistoryLimit)
	if s.sessions != nil {
		var err error
		if history, err = memory.LoadLog(ctx, s.sessions, req.SessionID, s.config.HistoryLimit); err != nil {
			return err
		}
	}

	creq := chat.Request{
		System:    req.System,
		User:      req.Message,
		Params:    req.Params,
		Memory:    history,
		Functions: req.Functions,
		Model:     req.Model,
	}
	if creq.System == "" {
		creq.System = s.config.SystemPrompt
	}

	resp := ChatResponse{SessionID: req.SessionID}
	if req.RAG {
		ans, err := s.pipeline.Ask(ctx, req.Message, s.topK(req.TopK), creq)
		if err != nil {
			return err
		}
		resp.Message = ans.Content
		resp.Sources = toResults(ans.Sources)
	} else {
		out, err := s.chat.Call(ctx, creq)
		if err != nil {
			return err
		}
		resp.Message = out.Content
	}

	if s.sessions != nil {
		turns := [][2]string{{llm.RoleUser, req.Message}, {llm.RoleAssistant, resp.Message}}
		for _, turn := range turns {
			if err := s.sessions.AppendMessage(ctx, req.SessionID, turn[0], turn[1]); err != nil {
				s.logger.Warn("failed to persist session", zap.String("session_id", req.SessionID), zap.Error(err))
				break
			}
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleClearSession(c echo.Context) error {
	if s.sessions == nil {
		return c.NoContent(http.StatusNoContent)
	}
	if err := s.sessions.ClearSession(c.Request().Context(), c.Param("session")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// DocumentInput is one document in a POST /documents body.
type DocumentInput struct {
	ID       string         `json:"id,omitempty"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DocumentsRequest is the request body for POST /documents.
type DocumentsRequest struct {
	Documents []DocumentInput `json:"documents"`
}

// DocumentsResponse is the response body for POST /documents.
type DocumentsResponse struct {
	DocumentIDs []string `json:"document_ids"`
	Chunks      int      `json:"chunks"`
}

func (s *Server) handleDocuments(c echo.Context) error {
	var req DocumentsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Documents) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "documents are required")
	}

	docs := make([]document.Document, len(req.Documents))
	ids := make([]string, len(req.Documents))
	for i, in := range req.Documents {
		doc := document.New(in.Text, in.Metadata)
		if in.ID != "" {
			doc.ID = in.ID
		}
		docs[i] = doc
		ids[i] = doc.ID
	}

	n, err := s.pipeline.Ingest(c.Request().Context(), docs)
	if err != nil {
		if n > 0 {
			s.logger.Warn("partial ingestion", zap.Int("chunks", n), zap.Error(err))
		}
		return err
	}
	return c.JSON(http.StatusCreated, DocumentsResponse{DocumentIDs: ids, Chunks: n})
}

// SearchRequest is the request body for POST /search.
type SearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// SearchResult is one ranked chunk.
type SearchResult struct {
	ChunkID    string         `json:"chunk_id"`
	DocumentID string         `json:"document_id"`
	Index      int            `json:"chunk_index"`
	Text       string         `json:"text"`
	Score      float64        `json:"score"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SearchResponse is the response body for POST /search.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	if req.TopK < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "top_k must not be negative")
	}

	results, err := s.pipeline.Query(c.Request().Context(), req.Query, s.topK(req.TopK))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SearchResponse{Results: toResults(results)})
}

// FunctionInfo describes a registered function.
type FunctionInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

func (s *Server) handleFunctions(c echo.Context) error {
	out := []FunctionInfo{}
	if s.chat != nil && s.chat.Registry() != nil {
		reg := s.chat.Registry()
		for _, name := range reg.List() {
			t, ok := reg.Get(name)
			if !ok {
				continue
			}
			def := tools.Definition(t)
			out = append(out, FunctionInfo{
				Name:        def.Function.Name,
				Description: def.Function.Description,
				Parameters:  def.Function.Parameters,
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"functions": out})
}

func (s *Server) topK(k int) int {
	if k <= 0 {
		return s.config.TopK
	}
	return k
}

func toResults(in []memory.SearchResult) []SearchResult {
	out := make([]SearchResult, len(in))
	for i, r := range in {
		out[i] = SearchResult{
			ChunkID:    r.Chunk.ID,
			DocumentID: r.Chunk.DocumentID,
			Index:      r.Chunk.Index,
			Text:       r.Chunk.Text,
			Score:      r.Score,
			Metadata:   r.Chunk.Metadata,
		}
	}
	return out
}
