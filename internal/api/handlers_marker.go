// handlers_marker.go - Marker create and list handlers
package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/marker-map/backend/internal/logging"
	"github.com/marker-map/backend/internal/storage"
	"github.com/marker-map/backend/internal/validation"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// MIMEApplicationMsgpack is the content type for msgpack responses
const MIMEApplicationMsgpack = "application/msgpack"

const (
	duplicatePositionMessage = "a marker already exists at this position"
	invalidBodyMessage       = "invalid request body"
)

// successResponse wraps every successful marker payload
type successResponse struct {
	Status string      `json:"status" msgpack:"status"`
	Data   interface{} `json:"data" msgpack:"data"`
}

// MarkerHandlerImpl implements the MarkerHandler interface
type MarkerHandlerImpl struct {
	store  storage.MarkerStore
	logger zerolog.Logger
}

// NewMarkerHandler creates a new marker handler
func NewMarkerHandler(store storage.MarkerStore) MarkerHandler {
	return &MarkerHandlerImpl{
		store:  store,
		logger: logging.With("markers"),
	}
}

// HandleListMarkers returns every marker, newest first. Clients that accept
// msgpack get the same envelope msgpack-encoded.
func (h *MarkerHandlerImpl) HandleListMarkers(c echo.Context) error {
	markers, err := h.store.ListAll(c.Request().Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("list markers failed")
		return RespondWithError(c, NewInternalError("failed to fetch markers"))
	}

	resp := successResponse{Status: "success", Data: markers}

	if acceptsMsgpack(c) {
		data, err := msgpack.Marshal(resp)
		if err != nil {
			h.logger.Error().Err(err).Msg("encode msgpack failed")
			return RespondWithError(c, NewInternalError("failed to encode markers"))
		}
		return c.Blob(http.StatusOK, MIMEApplicationMsgpack, data)
	}

	return c.JSON(http.StatusOK, resp)
}

// HandleCreateMarker validates the request body and stores a new marker.
func (h *MarkerHandlerImpl) HandleCreateMarker(c echo.Context) error {
	var req validation.MarkerInput
	if err := c.Bind(&req); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code != http.StatusBadRequest {
			return RespondWithError(c, fromHTTPError(he))
		}
		return RespondWithError(c, NewBadRequestError(invalidBodyMessage))
	}

	draft, err := validation.ValidateMarker(req)
	if err != nil {
		var verr *validation.ValidationError
		if errors.As(err, &verr) {
			return RespondWithError(c, NewValidationError(verr.Field, verr.Message))
		}
		h.logger.Error().Err(err).Msg("validate marker failed")
		return RespondWithError(c, NewInternalError("failed to create marker"))
	}

	marker, err := h.store.Create(c.Request().Context(), draft)
	switch {
	case errors.Is(err, storage.ErrDuplicateKey):
		return RespondWithError(c, NewConflictError(duplicatePositionMessage))
	case err != nil:
		h.logger.Error().Err(err).Msg("create marker failed")
		return RespondWithError(c, NewInternalError("failed to create marker"))
	}

	h.logger.Debug().
		Str("id", marker.ID).
		Float64("lat", marker.Position.Lat).
		Float64("lng", marker.Position.Lng).
		Msg("marker created")

	return c.JSON(http.StatusCreated, successResponse{Status: "success", Data: marker})
}

func acceptsMsgpack(c echo.Context) bool {
	accept := c.Request().Header.Get(echo.HeaderAccept)
	return strings.Contains(accept, MIMEApplicationMsgpack) ||
		strings.Contains(accept, "application/x-msgpack")
}
