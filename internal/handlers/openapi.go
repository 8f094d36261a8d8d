package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/eval-forge/eval-forge/internal/executioncontext"
	"github.com/eval-forge/eval-forge/internal/http_wrappers"
	"github.com/eval-forge/eval-forge/internal/messages"
)

// HandleOpenAPI serves the OpenAPI document. The file is looked up relative
// to the working directory first and the executable second, because tests
// and the container image run with different layouts.
func (h *Handlers) HandleOpenAPI(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	contentType := "application/yaml"
	if strings.Contains(r.Header("Accept"), "application/json") {
		contentType = "application/json"
	}

	possiblePaths := []string{
		"api/openapi.yaml",
		"../../api/openapi.yaml",
	}

	var spec []byte
	var err error
	for _, path := range possiblePaths {
		spec, err = os.ReadFile(filepath.Clean(path))
		if err == nil {
			break
		}
	}
	if err != nil {
		exePath, _ := os.Executable()
		if exePath != "" {
			specPath := filepath.Join(filepath.Dir(exePath), "api", "openapi.yaml")
			spec, err = os.ReadFile(specPath)
		}
	}
	if err != nil {
		w.ErrorWithMessageCode(ctx.RequestID, messages.InternalServerError, "Error", "failed to read the OpenAPI document: "+err.Error())
		return
	}

	w.SetHeader("Content-Type", contentType)
	w.SetStatusCode(http.StatusOK)
	_, _ = w.Write(spec)
}

// HandleDocs serves the Swagger UI shell pointing at the served OpenAPI
// document. The spec URL is origin-relative so the page works behind any
// ingress prefix that preserves the path.
func (h *Handlers) HandleDocs(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	html := `<!DOCTYPE html>
<html>
<head>
  <title>Eval Forge API Documentation</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui.css" />
  <style>
    html {
      box-sizing: border-box;
      overflow: -moz-scrollbars-vertical;
      overflow-y: scroll;
    }
    *, *:before, *:after {
      box-sizing: inherit;
    }
    body {
      margin:0;
      background: #fafafa;
    }
  </style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui-bundle.js"></script>
  <script src="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui-standalone-preset.js"></script>
  <script>
    window.onload = function() {
      const ui = SwaggerUIBundle({
        url: "/openapi.yaml",
        dom_id: '#swagger-ui',
        deepLinking: true,
        presets: [
          SwaggerUIBundle.presets.apis,
          SwaggerUIStandalonePreset
        ],
        plugins: [
          SwaggerUIBundle.plugins.DownloadUrl
        ],
        layout: "StandaloneLayout"
      });
    };
  </script>
</body>
</html>`

	w.SetHeader("Content-Type", "text/html; charset=utf-8")
	w.SetStatusCode(http.StatusOK)
	_, _ = w.Write([]byte(html))
}
