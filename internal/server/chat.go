package server

import (
	"context"
	"errors"
	"iter"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"multichat/internal/credentials"
	"multichat/internal/engine"
	"multichat/internal/models"
	"multichat/internal/provider/factory"
	"multichat/internal/translator"
)

func (s *Server) handleChat(c echo.Context) error {
	var req translator.ChatRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	keys, err := s.resolveKeys(ctx, c, req.APIKeys)
	if err != nil {
		return err
	}

	manager, err := s.newManager(keys)
	if err != nil {
		s.logger.Error("prepare dispatch", "err", err)
		if errors.Is(err, factory.ErrUnknownProvider) {
			return internalError(err.Error())
		}
		return internalError("failed to prepare dispatch")
	}

	// The request id doubles as the dispatch id so access logs and engine
	// logs share one key.
	dispatchID := c.Response().Header().Get(echo.HeaderXRequestID)
	if dispatchID == "" {
		dispatchID = uuid.NewString()
	}
	c.Response().Header().Set(headerDispatchID, dispatchID)
	ctx = engine.WithDispatchID(ctx, dispatchID)

	conversation, opts := req.Conversation(), req.Options()
	if req.Stream {
		return s.streamChunks(c, manager.DispatchStream(ctx, req.Models, conversation, opts))
	}
	return c.JSON(http.StatusOK, translator.BatchResponse{
		DispatchID: dispatchID,
		Responses:  manager.DispatchBatch(ctx, req.Models, conversation, opts),
	})
}

// resolveKeys merges request, stored and operator keys for the caller.
func (s *Server) resolveKeys(ctx context.Context, c echo.Context, requestKeys map[string]string) (map[string]string, error) {
	userID := strings.TrimSpace(c.Request().Header.Get(headerUserID))
	if userID == "" || s.keys == nil {
		return credentials.Resolve(requestKeys, nil, s.operatorKeys), nil
	}

	stored, err := s.keys.Keys(ctx, userID)
	if err != nil {
		s.logger.Error("load stored api keys", "user_id", userID, "err", err)
		return nil, internalError("failed to load stored API keys")
	}
	return credentials.Resolve(requestKeys, stored, s.operatorKeys), nil
}

func (s *Server) newManager(keys map[string]string) (*engine.Manager, error) {
	registry, err := factory.BuildRegistry(s.cfg.Models, keys, s.client, s.logger)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("adapters registered", "count", registry.Len(), "configured", len(s.cfg.Models))
	return engine.New(registry, s.router,
		engine.WithTimeout(s.cfg.Dispatch.Timeout),
		engine.WithLogger(s.logger),
	)
}

// streamChunks relays chunks as "chunk" events followed by one "end" event.
// A failed write stops ranging, which cancels the dispatch.
func (s *Server) streamChunks(c echo.Context, chunks iter.Seq[models.StreamChunk]) error {
	res := c.Response()
	sse, ok := newSSEWriter(res.Writer)
	if !ok {
		return internalError("server does not support streaming responses")
	}

	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	for chunk := range chunks {
		if err := sse.event("chunk", chunk); err != nil {
			s.logger.Warn("client stream closed", "err", err)
			return nil
		}
	}
	if err := sse.end(); err != nil {
		s.logger.Warn("client stream closed", "err", err)
	}
	return nil
}
