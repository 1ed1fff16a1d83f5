package conversations

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
		Name:   "conversations",
		Order:  110,
		Loader: MountRoutes,
	})
}

// MountRoutes mounts conversation routes, including the per-conversation
// message and summary listings.
func MountRoutes(r *gin.Engine, svc *aggregator.Service) error {
	g := r.Group("/v1/conversations")
	g.POST("", func(c *gin.Context) { resolveConversation(c, svc) })
	g.GET("", func(c *gin.Context) { listConversations(c, svc) })
	g.GET("/:conversationId", func(c *gin.Context) { getFullConversation(c, svc) })
	g.PUT("/:conversationId/metadata", func(c *gin.Context) { updateMetadata(c, svc) })
	g.GET("/:conversationId/messages", func(c *gin.Context) { listMessages(c, svc) })
	g.GET("/:conversationId/summaries", func(c *gin.Context) { listSummaries(c, svc) })
	return nil
}

func resolveConversation(c *gin.Context, svc *aggregator.Service) {
	var req aggregator.ConversationInput
	if !httperr.BindJSON(c, &req) {
		return
	}
	conv, err := svc.ResolveConversation(c.Request.Context(), req)
	if err != nil {
		httperr.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func listConversations(c *gin.Context, svc *aggregator.Service) {
	if externalID := c.Query("externalId"); externalID != "" {
		conv, err := svc.FindConversationByExternalID(c.Request.Context(), externalID)
		if err != nil {
			httperr.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, conv)
		return
	}
	list, err := svc.ListConversations(c.Request.Context())
	if err != nil {
		httperr.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func getFullConversation(c *gin.Context, svc *aggregator.Service) {
	id, ok := httperr.PathID(c, "conversationId", "conversation")
	if !ok {
		return
	}
	full, err := svc.GetFullConversation(c.Request.Context(), id)
	if err != nil {
		httperr.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, full)
}

func updateMetadata(c *gin.Context, svc *aggregator.Service) {
	id, ok := httperr.PathID(c, "conversationId", "conversation")
	if !ok {
		return
	}
	var req model.MetadataUpdate
	if !httperr.BindJSON(c, &req) {
		return
	}
	conv, err := svc.UpdateConversationMetadata(c.Request.Context(), id, req)
	if err != nil {
		httperr.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func listMessages(c *gin.Context, svc *aggregator.Service) {
	id, ok := httperr.PathID(c, "conversationId", "conversation")
	if !ok {
		return
	}
	msgs, err := svc.ListConversationMessages(c.Request.Context(), id)
	if err != nil {
		httperr.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": msgs})
}

func listSummaries(c *gin.Context, svc *aggregator.Service) {
	id, ok := httperr.PathID(c, "conversationId", "conversation")
	if !ok {
		return
	}
	list, err := svc.ListMessageSummaries(c.Request.Context(), id)
	if err != nil {
		httperr.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}
