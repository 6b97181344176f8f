package device

import (
	"encoding/json"

	"wallctl-go/pkg/metrics"
	"wallctl-go/pkg/state"
	"wallctl-go/pkg/wire"
)

// The closed set of notification methods the device pushes. Anything
// outside it is ignored and logged, never applied.
const (
	notifyCreateDisplay  = "notify_create_display"
	notifyModifyDisplay  = "notify_modify_display"
	notifyDeleteDisplay  = "notify_delete_display"
	notifyCreateLayout   = "notify_create_layout"
	notifyModifyLayout   = "notify_modify_layout"
	notifyDeleteLayout   = "notify_delete_layout"
	notifyCreateSnapshot = "notify_create_snapshot"
	notifyModifySnapshot = "notify_modify_snapshot"
	notifyDeleteSnapshot = "notify_delete_snapshot"
)

type deletePayload struct {
	ID int `json:"id"`
}

// handleNotification applies one server notification to the cache.
// Notifications with no payload or an unrecognized method are no-ops.
func (c *Client) handleNotification(msg *wire.Message) {
	if len(msg.Params) == 0 || string(msg.Params) == "null" {
		c.drop(msg.Method, "missing payload")
		return
	}

	switch msg.Method {
	case notifyCreateDisplay, notifyModifyDisplay:
		var d state.Display
		if err := json.Unmarshal(msg.Params, &d); err != nil {
			c.drop(msg.Method, err.Error())
			return
		}
		c.cache.UpsertDisplay(d)
		// A changed display may carry different windows and inputs;
		// re-fetch them off the dispatch path, best effort.
		go c.refreshDisplayIO(d.ID)

	case notifyDeleteDisplay:
		var p deletePayload
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			c.drop(msg.Method, err.Error())
			return
		}
		c.cache.DeleteDisplay(p.ID)

	case notifyCreateLayout, notifyModifyLayout:
		var l state.Layout
		if err := json.Unmarshal(msg.Params, &l); err != nil {
			c.drop(msg.Method, err.Error())
			return
		}
		c.cache.UpsertLayout(l)

	case notifyDeleteLayout:
		var p deletePayload
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			c.drop(msg.Method, err.Error())
			return
		}
		c.cache.DeleteLayout(p.ID)

	case notifyCreateSnapshot, notifyModifySnapshot:
		var s state.Snapshot
		if err := json.Unmarshal(msg.Params, &s); err != nil {
			c.drop(msg.Method, err.Error())
			return
		}
		c.cache.UpsertSnapshot(s)

	case notifyDeleteSnapshot:
		var p deletePayload
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			c.drop(msg.Method, err.Error())
			return
		}
		c.cache.DeleteSnapshot(p.ID)

	default:
		c.drop(msg.Method, "unrecognized method")
		return
	}

	metrics.Global().NotificationsApplied.Inc()
	c.logger.Debug("applied %s", msg.Method)
}

func (c *Client) drop(method, reason string) {
	metrics.Global().NotificationsDropped.Inc()
	c.logger.WithField("method", method).Warn("ignoring notification: %s", reason)
}
