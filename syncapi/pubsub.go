package syncapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// PubSubPushHandler starts a run from a scheduler message. Malformed messages
// and refused runs (too soon, lock held) are acknowledged. Failed runs answer
// 500 so the subscription redelivers.
func (h *Handlers) PubSubPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(http.StatusNoContent)
			return
		}
		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(http.StatusNoContent)
			return
		}
		var payload TriggerPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil || payload.Family == "" || payload.Plant == "" {
			h.logger().WithField("message_id", envelope.Message.ID).Warn("dropping malformed sync trigger")
			c.Status(http.StatusNoContent)
			return
		}
		payload.Plant = strings.ToLower(strings.TrimSpace(payload.Plant))
		if len(h.Plants) > 0 && !slices.Contains(h.Plants, payload.Plant) {
			h.logger().WithField("plant", payload.Plant).Warn("dropping sync trigger for unknown plant")
			c.Status(http.StatusNoContent)
			return
		}

		status, out := h.trigger(context.WithoutCancel(c.Request.Context()), payload.Family, payload.Plant)
		h.logger().WithFields(logrus.Fields{
			"message_id": envelope.Message.ID,
			"family":     payload.Family,
			"plant":      payload.Plant,
			"status":     out.Status,
		}).Info("sync trigger handled")
		if status >= http.StatusInternalServerError {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
