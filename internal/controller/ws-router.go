package controller

import (
	"github.com/watchsync/server/pkg/wsrouter"
)

func (c *controller) getWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New()

	mux.Use(c.wsRequestIDMw())
	mux.Use(c.wsLoggingMw())

	wsrouter.Handle(mux, "ALIVE", c.handleAlive)

	// member
	wsrouter.Handle(mux, "REMOVE_MEMBER", c.handleRemoveMember)
	wsrouter.Handle(mux, "PROMOTE_MEMBER", c.handlePromoteMember)

	// player
	wsrouter.Handle(mux, "UPDATE_PLAYER_STATE", c.handleUpdatePlayerState)
	wsrouter.Handle(mux, "SYNC_REQUEST", c.handleSyncRequest)

	// queue
	wsrouter.Handle(mux, "ADD_VIDEO", c.handleAddVideo)
	wsrouter.Handle(mux, "REMOVE_VIDEO", c.handleRemoveVideo)
	wsrouter.Handle(mux, "SELECT_VIDEO", c.handleSelectVideo)

	return mux
}
