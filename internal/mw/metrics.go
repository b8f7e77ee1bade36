package mw

import "github.com/gin-gonic/gin"

// RequestObserver records one finished HTTP request.
type RequestObserver interface {
	ObserveRequest(route, method string, code int)
}

// Metrics reports every request to o, labelled by its route template.
func Metrics(o RequestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		o.ObserveRequest(c.FullPath(), c.Request.Method, c.Writer.Status())
	}
}
