package ingest

import (
	"net/http"

	"github.com/chirino/unimsg/internal/aggregator"
	"github.com/chirino/unimsg/internal/plugin/route/httperr"
	registryroute "github.com/chirino/unimsg/internal/registry/route"
	"github.com/gin-gonic/gin"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:   "ingest",
		Order:  140,
		Loader: MountRoutes,
	})
}

// MountRoutes mounts the natural-key ingestion route.
func MountRoutes(r *gin.Engine, svc *aggregator.Service) error {
	r.POST("/v1/ingest", func(c *gin.Context) {
		var req aggregator.IngestInput
		if !httperr.BindJSON(c, &req) {
			return
		}
		res, err := svc.Ingest(c.Request.Context(), req)
		if err != nil {
			httperr.HandleError(c, err)
			return
		}
		c.JSON(http.StatusCreated, res)
	})
	return nil
}
