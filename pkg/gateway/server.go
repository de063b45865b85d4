package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func InstallHandler(group *gin.RouterGroup, mgr *Manager) {
	group.GET("/gateway", getGateway(mgr))
}

func getGateway(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, mgr.GetStatus())
	}
}
