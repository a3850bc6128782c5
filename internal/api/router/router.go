package router

import (
	"net/http"
	"strings"

	"github.com/wb-go/wbf/ginext"

	"github.com/aliskhannn/latex2image/internal/api/handlers/convert"
	"github.com/aliskhannn/latex2image/internal/api/handlers/job"
	"github.com/aliskhannn/latex2image/internal/middleware"
)

// Static describes the directories served as files. Empty fields disable
// the corresponding route.
type Static struct {
	OutputDir string // published images
	OutputURL string // URL prefix of published images, e.g. "output/"
	UIDir     string // browser client
}

// Setup builds the HTTP routes. jh may be nil when job history is disabled.
func Setup(ch *convert.Handler, jh *job.Handler, st Static) *ginext.Engine {
	r := ginext.New()

	r.Use(middleware.CORSMiddleware())
	r.Use(ginext.Logger())
	r.Use(ginext.Recovery())

	r.GET("/healthz", func(c *ginext.Context) {
		c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	r.POST("/convert", ch.Convert) // browser client endpoint

	api := r.Group("/api")
	api.POST("/convert", ch.Convert)
	if jh != nil {
		api.GET("/jobs/:id", jh.Get)
	}

	if st.OutputDir != "" {
		r.Static(outputRoute(st.OutputURL), st.OutputDir)
	}

	if st.UIDir != "" {
		files := http.FileServer(http.Dir(st.UIDir))
		r.NoRoute(func(c *ginext.Context) {
			if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
				c.Status(http.StatusNotFound)
				return
			}
			files.ServeHTTP(c.Writer, c.Request)
		})
	}

	return r
}

// outputRoute turns a URL prefix like "output/" or "/output" into a route path.
func outputRoute(prefix string) string {
	p := "/" + strings.Trim(prefix, "/")
	if p == "/" {
		return "/output"
	}
	return p
}
