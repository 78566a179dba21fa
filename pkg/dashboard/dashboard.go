// Package dashboard exposes a read-only HTTP view over broker state for
// operators. It cannot submit, claim, abort, or delete a job, so it never
// touches broker invariants — it only ever calls Broker.Status. Grounded in
// the teacher's gin-based pkg/api and pkg/dashboard handlers, repointed
// from a distributed scheduler's worker/job views to this broker's
// queue/client snapshot.
package dashboard

import (
	"net/http"

	"github.com/brokerhq/jobcentre/pkg/broker"
	"github.com/gin-gonic/gin"
)

// Dashboard wraps a Broker to serve its read-only HTTP surface.
type Dashboard struct {
	broker *broker.Broker
}

func New(b *broker.Broker) *Dashboard {
	return &Dashboard{broker: b}
}

// Router builds the gin engine serving /status, /queues, and the SSE feed.
func (d *Dashboard) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/status", d.status)
	r.GET("/queues", d.queues)
	r.GET("/events/status", d.statusSSE)

	return r
}

func (d *Dashboard) status(c *gin.Context) {
	c.JSON(http.StatusOK, d.broker.Status())
}

func (d *Dashboard) queues(c *gin.Context) {
	c.JSON(http.StatusOK, d.broker.Status().Queues)
}
