package summaries

import (
	"net/http"

	"github.com/chirino/unimsg/internal/aggregator"
	"github.com/chirino/unimsg/internal/plugin/route/httperr"
	registryroute "github.com/chirino/unimsg/internal/registry/route"
	"github.com/gin-gonic/gin"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:   "message-summaries",
		Order:  130,
		Loader: MountRoutes,
	})
}

// MountRoutes mounts the message summary creation route. Listing lives under
// the owning conversation.
func MountRoutes(r *gin.Engine, svc *aggregator.Service) error {
	r.POST("/v1/message-summaries", func(c *gin.Context) {
		var req aggregator.SummaryInput
		if !httperr.BindJSON(c, &req) {
			return
		}
		sum, err := svc.SummarizeMessages(c.Request.Context(), req)
		if err != nil {
			httperr.HandleError(c, err)
			return
		}
		c.JSON(http.StatusCreated, sum)
	})
	return nil
}
