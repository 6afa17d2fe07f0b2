package server

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"

	"multichat/internal/credentials"
	"multichat/internal/keystore"
	"multichat/internal/models"
	"multichat/internal/translator"
)

func (s *Server) handleModels(c echo.Context) error {
	keys, err := s.resolveKeys(c.Request().Context(), c, nil)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"models": translator.ModelInfos(s.cfg.Models, keys),
	})
}

func (s *Server) handleListKeys(c echo.Context) error {
	userID, err := s.keyOwner(c)
	if err != nil {
		return err
	}

	entries, err := s.keys.List(c.Request().Context(), userID)
	if err != nil {
		s.logger.Error("list api keys", "user_id", userID, "err", err)
		return internalError("failed to fetch API keys")
	}
	return c.JSON(http.StatusOK, map[string]any{"api_keys": entries})
}

func (s *Server) handlePutKey(c echo.Context) error {
	userID, err := s.keyOwner(c)
	if err != nil {
		return err
	}
	model := strings.TrimSpace(c.Param("model"))
	known := slices.ContainsFunc(s.cfg.Models, func(m models.ModelSpec) bool { return m.ID == model })
	if !known {
		return badRequest("unknown model: %s", model)
	}

	var req translator.PutKeyRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}
	key := credentials.Sanitize(req.APIKey)
	if key == "" {
		return badRequest("Model and API key are required")
	}

	if err := s.keys.Put(c.Request().Context(), userID, model, key); err != nil {
		s.logger.Error("store api key", "user_id", userID, "model", model, "err", err)
		return internalError("failed to store API key")
	}
	s.logger.Info("api key stored", "user_id", userID, "model", model)
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleDeleteKey(c echo.Context) error {
	userID, err := s.keyOwner(c)
	if err != nil {
		return err
	}
	model := strings.TrimSpace(c.Param("model"))

	err = s.keys.Delete(c.Request().Context(), userID, model)
	switch {
	case errors.Is(err, keystore.ErrNotFound):
		return notFound(err.Error())
	case err != nil:
		s.logger.Error("delete api key", "user_id", userID, "model", model, "err", err)
		return internalError("failed to delete API key")
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// keyOwner returns the caller's user id, failing when the key store is off.
func (s *Server) keyOwner(c echo.Context) (string, error) {
	if s.keys == nil {
		return "", unavailable("key store is not configured")
	}
	userID := strings.TrimSpace(c.Request().Header.Get(headerUserID))
	if userID == "" {
		return "", badRequest("%s header is required", headerUserID)
	}
	return userID, nil
}
