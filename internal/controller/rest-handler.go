package controller

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/watchsync/server/internal/service/room"
	"github.com/watchsync/server/pkg/rest"
)

type validateCreateRoomInput struct {
	Username        string `json:"username" validate:"required,max=16"`
	Color           string `json:"color" validate:"required,min=3,max=6"`
	AvatarURL       string `json:"avatar_url"`
	InitialVideoURL string `json:"initial_video_url" validate:"required"`
}

type validateRoomResponse struct {
	ConnectToken string `json:"connect_token"`
}

func (c *controller) validateCreateRoom(w http.ResponseWriter, r *http.Request) {
	var input validateCreateRoomInput

	if err := rest.ReadJSON(r, &input); err != nil {
		rest.WriteJSON(w, http.StatusUnprocessableEntity, rest.Envelope{"error": err.Error()})
		return
	}

	if validationErrors, ok := c.validate.Validate(input); !ok {
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"errors": validationErrors})
		return
	}

	connectToken, err := c.roomService.CreateRoomCreateSession(r.Context(), &room.CreateRoomCreateSessionParams{
		Username:        input.Username,
		Color:           input.Color,
		AvatarURL:       input.AvatarURL,
		InitialVideoURL: input.InitialVideoURL,
	})
	if err != nil {
		c.logger.InfoContext(r.Context(), "failed to create room session", "error", err)
		rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": "internal error"})
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": validateRoomResponse{
		ConnectToken: connectToken,
	}})
}

type validateJoinRoomInput struct {
	Username  string `json:"username" validate:"required,max=16"`
	Color     string `json:"color" validate:"required,min=3,max=6"`
	AvatarURL string `json:"avatar_url"`
}

func (c *controller) validateJoinRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room-id")
	if roomID == "" {
		rest.WriteJSON(w, http.StatusNotFound, rest.Envelope{"error": "room not found"})
		return
	}

	var input validateJoinRoomInput

	if err := rest.ReadJSON(r, &input); err != nil {
		rest.WriteJSON(w, http.StatusUnprocessableEntity, rest.Envelope{"error": err.Error()})
		return
	}

	if validationErrors, ok := c.validate.Validate(input); !ok {
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"errors": validationErrors})
		return
	}

	connectToken, err := c.roomService.CreateRoomJoinSession(r.Context(), &room.CreateRoomJoinSessionParams{
		Username:  input.Username,
		Color:     input.Color,
		AvatarURL: input.AvatarURL,
		RoomID:    roomID,
	})
	if err != nil {
		switch {
		case errors.Is(err, room.ErrRoomNotFound):
			rest.WriteJSON(w, http.StatusNotFound, rest.Envelope{"error": "room not found"})
		case errors.Is(err, room.ErrMembersLimitReached):
			rest.WriteJSON(w, http.StatusConflict, rest.Envelope{"error": "room is full"})
		default:
			c.logger.InfoContext(r.Context(), "failed to create join room session", "error", err)
			rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": "internal error"})
		}
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": validateRoomResponse{
		ConnectToken: connectToken,
	}})
}
