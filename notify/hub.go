package notify

import (
	"context"

	"github.com/liamcoop/campaignrules/feed"
	"github.com/liamcoop/campaignrules/history"
)

// Broadcaster pushes a typed message to live clients. *feed.Hub implements it.
type Broadcaster interface {
	Broadcast(msgType string, data any) error
}

// HubNotifier pushes actions to the dashboard websocket.
type HubNotifier struct {
	Hub Broadcaster
}

func (HubNotifier) Name() string { return "websocket" }

func (n HubNotifier) Notify(_ context.Context, evt *history.ActionEvent) error {
	return n.Hub.Broadcast(feed.MessageActionTaken, evt)
}
