package api

import (
	"net/http"
)

type route struct {
	method    string
	path      string
	id        string
	summary   string
	responses map[string]string
	body      bool
	public    bool
}

var dispatcherRoutes = []route{
	{method: "get", path: "/healthz", id: "healthz", summary: "Liveness and governed job", public: true,
		responses: map[string]string{"200": "OK"}},
	{method: "get", path: "/job", id: "getJobDetails", summary: "Job details",
		responses: map[string]string{"200": "Job details", "503": "Dispatcher stopped"}},
	{method: "get", path: "/job/status", id: "getJobStatus", summary: "Current job status",
		responses: map[string]string{"200": "Job status", "503": "Dispatcher stopped"}},
	{method: "get", path: "/job/result", id: "getJobResult", summary: "Archived execution graph",
		responses: map[string]string{"200": "Archived execution graph", "409": "Job not finished"}},
	{method: "post", path: "/job/cancel", id: "cancelJob", summary: "Cancel the job",
		responses: map[string]string{"202": "Cancel requested"}},
	{method: "post", path: "/jobs", id: "submitJob", summary: "Submit a job graph", body: true,
		responses: map[string]string{"202": "Accepted", "400": "Invalid job graph", "409": "Submission rejected"}},
	{method: "get", path: "/events", id: "streamEvents", summary: "Lifecycle events (SSE)",
		responses: map[string]string{"200": "text/event-stream"}},
}

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the dispatcher routes.
func buildOpenAPIDoc(jobID string, authRequired bool) map[string]any {
	paths := map[string]any{}
	for _, rt := range dispatcherRoutes {
		responses := map[string]any{}
		for code, desc := range rt.responses {
			responses[code] = map[string]any{"description": desc}
		}
		if authRequired && !rt.public {
			responses["401"] = map[string]any{"description": "Unauthorized"}
		}

		op := map[string]any{
			"operationId": rt.id,
			"summary":     rt.summary,
			"responses":   responses,
		}
		if authRequired && !rt.public {
			op["security"] = []any{map[string]any{"BearerAuth": []string{}}}
		}
		if rt.body {
			op["requestBody"] = map[string]any{
				"required": true,
				"content": map[string]any{
					"application/yaml": map[string]any{},
					"application/json": map[string]any{},
				},
			}
		}

		item, _ := paths[rt.path].(map[string]any)
		if item == nil {
			item = map[string]any{}
			paths[rt.path] = item
		}
		item[rt.method] = op
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "jobcluster dispatcher " + jobID,
			"version": "1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}

// handleOpenAPI handles GET /openapi.json (no auth).
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(s.dispatcher.JobID(), s.config.APIKey != ""))
}
