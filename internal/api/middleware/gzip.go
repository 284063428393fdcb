package middleware

import (
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
)

// gzipWriter compresses the body written through it.
type gzipWriter struct {
	gin.ResponseWriter
	writer  *gzip.Writer
	written bool
}

func (g *gzipWriter) WriteHeader(code int) {
	g.Header().Del("Content-Length")
	g.ResponseWriter.WriteHeader(code)
}

func (g *gzipWriter) Write(data []byte) (int, error) {
	g.Header().Del("Content-Length")
	g.written = true
	return g.writer.Write(data)
}

func (g *gzipWriter) WriteString(s string) (int, error) {
	return g.Write([]byte(s))
}

// Gzip compresses responses for clients that accept gzip. Paths in exclude
// (for example a metrics endpoint that compresses on its own) and WebSocket
// upgrades pass through untouched.
func Gzip(level int, exclude ...string) gin.HandlerFunc {
	pool := sync.Pool{
		New: func() any {
			w, err := gzip.NewWriterLevel(io.Discard, level)
			if err != nil {
				w = gzip.NewWriter(io.Discard)
			}
			return w
		},
	}

	return func(c *gin.Context) {
		if !acceptsGzip(c.Request) || slices.Contains(exclude, c.Request.URL.Path) {
			c.Next()
			return
		}

		gz := pool.Get().(*gzip.Writer)
		gz.Reset(c.Writer)

		c.Header("Content-Encoding", "gzip")
		c.Header("Vary", "Accept-Encoding")
		gw := &gzipWriter{ResponseWriter: c.Writer, writer: gz}
		c.Writer = gw

		defer func() {
			if !gw.written {
				// Nothing to compress: drop the header and the empty gzip frame.
				gw.Header().Del("Content-Encoding")
				gz.Reset(io.Discard)
			}
			_ = gz.Close()
			gz.Reset(io.Discard)
			pool.Put(gz)
		}()

		c.Next()
	}
}

func acceptsGzip(r *http.Request) bool {
	if r.Method == http.MethodHead {
		return false
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return false
	}
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}
