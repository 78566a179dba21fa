package dashboard

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
)

// statusInterval matches the teacher's original 2-second ticker cadence.
const statusInterval = 2 * time.Second

// statusSSE streams the same payload as GET /status every two seconds.
// Ported from the teacher's jobsSSE/workersSSE/statusSSE handlers (ticker
// loop, client-disconnect detected via the request context), collapsed to
// the single status feed this broker's dashboard exposes.
func (d *Dashboard) statusSSE(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")

	clientGone := c.Request.Context().Done()

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-clientGone:
			return
		case <-ticker.C:
			data, err := json.Marshal(d.broker.Status())
			if err != nil {
				continue
			}
			fmt.Fprintf(c.Writer, "event: status\n")
			fmt.Fprintf(c.Writer, "data: %s\n\n", data)
			c.Writer.Flush()
		}
	}
}
