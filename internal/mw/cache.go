package mw

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

type bodyCacheWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyCacheWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w bodyCacheWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// cacheableHeaders copies h without the headers that vary per caller. CORS
// middleware sets those for each request before the cache answers.
func cacheableHeaders(h http.Header) http.Header {
	out := h.Clone()
	for k := range out {
		if k == "Vary" || strings.HasPrefix(k, "Access-Control-") {
			delete(out, k)
		}
	}
	return out
}

func successful(status int) bool {
	return status >= 200 && status < 300
}

// Cache is a middleware for in-memory caching of GET requests. Any successful
// request with another method flushes the whole cache, since a single write
// can change both a machine and the machine list.
func Cache(store *cache.Cache, duration time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			if successful(c.Writer.Status()) {
				store.Flush()
			}
			return
		}

		key := c.Request.RequestURI
		if resp, found := store.Get(key); found {
			cached := resp.(cachedResponse)
			for k, v := range cached.headers {
				c.Writer.Header()[k] = v
			}
			c.Writer.Header().Set("X-Cache", "HIT")
			c.Writer.WriteHeader(cached.status)
			c.Writer.Write(cached.body)
			c.Abort()
			return
		}

		blw := &bodyCacheWriter{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		if successful(blw.Status()) {
			response := cachedResponse{
				status:  blw.Status(),
				headers: cacheableHeaders(blw.Header()),
				body:    blw.body.Bytes(),
			}
			store.Set(key, response, duration)
		}
	}
}
