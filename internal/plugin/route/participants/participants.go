package participants

import (
	"net/http"

	"github.com/chirino/unimsg/internal/aggregator"
	"github.com/chirino/unimsg/internal/plugin/route/httperr"
	registryroute "github.com/chirino/unimsg/internal/registry/route"
	"github.com/gin-gonic/gin"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:   "participants",
		Order:  100,
		Loader: MountRoutes,
	})
}

// MountRoutes mounts participant routes.
func MountRoutes(r *gin.Engine, svc *aggregator.Service) error {
	g := r.Group("/v1/participants")
	g.POST("", func(c *gin.Context) { resolveParticipant(c, svc) })
	g.GET("", func(c *gin.Context) { listParticipants(c, svc) })
	g.GET("/:participantId", func(c *gin.Context) { getParticipant(c, svc) })
	return nil
}

func resolveParticipant(c *gin.Context, svc *aggregator.Service) {
	var req aggregator.ParticipantInput
	if !httperr.BindJSON(c, &req) {
		return
	}
	p, err := svc.ResolveParticipant(c.Request.Context(), req)
	if err != nil {
		httperr.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func listParticipants(c *gin.Context, svc *aggregator.Service) {
	if address := c.Query("address"); address != "" {
		p, err := svc.FindParticipantByAddress(c.Request.Context(), address)
		if err != nil {
			httperr.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
		return
	}
	list, err := svc.ListParticipants(c.Request.Context())
	if err != nil {
		httperr.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func getParticipant(c *gin.Context, svc *aggregator.Service) {
	id, ok := httperr.PathID(c, "participantId", "participant")
	if !ok {
		return
	}
	p, err := svc.GetParticipant(c.Request.Context(), id)
	if err != nil {
		httperr.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
