package permission

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const gateKey = "gate"

const defaultDeniedMessage = "You do not have permission to access this module."

// SetGate stores the request's gate for Guard and handlers.
func SetGate(c *gin.Context, g *Gate) {
	c.Set(gateKey, g)
}

func GateFrom(c *gin.Context) (*Gate, bool) {
	v, ok := c.Get(gateKey)
	if !ok {
		return nil, false
	}
	g, ok := v.(*Gate)
	return g, ok
}

type GuardOptions struct {
	ShowMessage bool
	Message     string
}

// Guard wraps handler so it only runs when the request's gate allows action
// on module. A denied request gets a 403, with a message when ShowMessage is
// set.
func Guard(handler gin.HandlerFunc, module Module, action Action, opts GuardOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		g, ok := GateFrom(c)
		if !ok || !g.Can(module, action) {
			if !opts.ShowMessage {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			msg := opts.Message
			if msg == "" {
				msg = defaultDeniedMessage
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": msg})
			return
		}
		handler(c)
	}
}
