package messages

import (
	"net/http"

	"github.com/chirino/unimsg/internal/aggregator"
	"github.com/chirino/unimsg/internal/model"
	"github.com/chirino/unimsg/internal/plugin/route/httperr"
	registryroute "github.com/chirino/unimsg/internal/registry/route"
	"github.com/gin-gonic/gin"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:   "messages",
		Order:  120,
		Loader: MountRoutes,
	})
}

// MountRoutes mounts message routes.
func MountRoutes(r *gin.Engine, svc *aggregator.Service) error {
	g := r.Group("/v1/messages")
	g.POST("", func(c *gin.Context) { recordMessage(c, svc) })
	g.GET("", func(c *gin.Context) { listMessages(c, svc) })
	g.GET("/:messageId", func(c *gin.Context) { getMessage(c, svc) })
	g.PUT("/:messageId/metadata", func(c *gin.Context) { updateMetadata(c, svc) })
	return nil
}

func recordMessage(c *gin.Context, svc *aggregator.Service) {
	var req aggregator.MessageInput
	if !httperr.BindJSON(c, &req) {
		return
	}
	msg, err := svc.RecordMessage(c.Request.Context(), req)
	if err != nil {
		httperr.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func listMessages(c *gin.Context, svc *aggregator.Service) {
	list, err := svc.ListMessages(c.Request.Context())
	if err != nil {
		httperr.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func getMessage(c *gin.Context, svc *aggregator.Service) {
	id, ok := httperr.PathID(c, "messageId", "message")
	if !ok {
		return
	}
	msg, err := svc.GetMessage(c.Request.Context(), id)
	if err != nil {
		httperr.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func updateMetadata(c *gin.Context, svc *aggregator.Service) {
	id, ok := httperr.PathID(c, "messageId", "message")
	if !ok {
		return
	}
	var req model.MetadataUpdate
	if !httperr.BindJSON(c, &req) {
		return
	}
	msg, err := svc.UpdateMessageMetadata(c.Request.Context(), id, req)
	if err != nil {
		httperr.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}
