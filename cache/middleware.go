package cache

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Middleware caches anonymous GETs of book detail pages. Requests that
// carry the session cookie skip the cache entirely: the page differs for
// logged-in users (comment form, admin links).
func Middleware(maxAge time.Duration, sessionCookie string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet || !isBookPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		if cookie, err := c.Cookie(sessionCookie); err == nil && cookie != "" {
			c.Next()
			return
		}

		path := c.Request.URL.Path
		if cached, found := ReadPage(path, maxAge); found {
			c.Header("X-Cache", "HIT")
			c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(cached))
			c.Abort()
			return
		}

		c.Header("X-Cache", "MISS")

		writer := &responseWriter{
			ResponseWriter: c.Writer,
			body:           bytes.NewBuffer(nil),
		}
		c.Writer = writer

		c.Next()

		if c.Writer.Status() == http.StatusOK &&
			strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "text/html") {
			WritePage(path, writer.body.String())
		}
	}
}

// isBookPath matches /book/<id> and nothing else.
func isBookPath(path string) bool {
	rest, ok := strings.CutPrefix(path, "/book/")
	if !ok || rest == "" {
		return false
	}
	return !strings.Contains(rest, "/")
}
