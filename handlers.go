package main

import (
	"encoding/json"
	"errors"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kwv/headswap/rig"
)

// mergeRequestBody is the JSON form of POST /merge
type mergeRequestBody struct {
	Head       string `json:"head"`
	Body       string `json:"body"`
	Executable string `json:"executable,omitempty"`
}

// panelPage is the data rendered into the control panel
type panelPage struct {
	Selection   rig.Selection
	HeadAsset   string
	BodyAsset   string
	ToolPath    string
	ToolWarning string
	CanMerge    bool
	Report      *rig.MergeReport
	Failed      bool
}

var panelTemplate = template.Must(template.New("panel").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>headswap</title>
<style>
body{font-family:sans-serif;max-width:720px;margin:2em auto;color:#222}
label{display:block;margin-top:1em;font-weight:bold}
input[type=text]{width:100%;padding:4px}
.derived{color:#666;font-size:90%}
.warning{background:#fff3cd;border:1px solid #e0c36c;padding:8px;margin-top:1em}
dialog{border:2px solid #c33}
img{max-width:100%;margin-top:1em;border:1px solid #ddd}
</style>
</head>
<body>
<h1>Head Swap</h1>
<ol>
<li>Make sure the merge tool is installed and on the system PATH, or set it below</li>
<li>Pick the head rig and the body rig</li>
<li>Press Merge</li>
</ol>
<form method="get" action="/">
<label for="head">Head rig</label>
<input type="text" id="head" name="head" value="{{.Selection.Head}}" onchange="this.form.submit()">
<div class="derived">Asset: {{.HeadAsset}}</div>
<label for="body">Body rig</label>
<input type="text" id="body" name="body" value="{{.Selection.Body}}" onchange="this.form.submit()">
<div class="derived">Asset: {{.BodyAsset}}</div>
<label for="executable">Merge tool executable</label>
<input type="text" id="executable" name="executable" value="{{.Selection.Executable}}" placeholder="{{.ToolPath}}" onchange="this.form.submit()">
</form>
{{if .ToolWarning}}<div class="warning">{{.ToolWarning}}</div>{{end}}
<form method="post" action="/merge">
<input type="hidden" name="head" value="{{.Selection.Head}}">
<input type="hidden" name="body" value="{{.Selection.Body}}">
<input type="hidden" name="executable" value="{{.Selection.Executable}}">
<p><button type="submit"{{if not .CanMerge}} disabled{{end}}>Merge</button></p>
</form>
{{if .ToolPath}}<form method="post" action="/test-launch"><input type="hidden" name="executable" value="{{.Selection.Executable}}"><button type="submit">Test launch merge tool</button></form>{{end}}
{{if .Report}}{{if .Failed}}
<dialog open>
<h2>Error</h2>
<p>{{.Report.Error}}</p>
{{if .Report.ExitCode}}<p>Exit code: {{.Report.ExitCode}}</p>{{end}}
<form method="dialog"><button>OK</button></form>
</dialog>
{{else}}
<h2>Last merge</h2>
<p>{{.Report.OutputPath}}: {{.Report.CollidersCloned}} colliders, {{.Report.ChainsCloned}} bone chains, {{.Report.ConstraintsCloned}} constraints, {{len .Report.SynthesizedNodes}} created nodes</p>
<img src="/preview.svg" alt="Merged skeleton">
{{end}}{{end}}
</body>
</html>`))

// newHTTPServer creates the control panel handler with all endpoints
func newHTTPServer(app *App) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			HasMerged bool      `json:"hasMerged"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			HasMerged: app.StateTracker.LastMerged() != nil,
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Printf("Error encoding health status: %v", err)
		}
	})

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		sel := app.StateTracker.Selection()
		q := r.URL.Query()
		if q.Has("head") || q.Has("body") || q.Has("executable") {
			sel = rig.Selection{
				Head:       strings.TrimSpace(q.Get("head")),
				Body:       strings.TrimSpace(q.Get("body")),
				Executable: strings.TrimSpace(q.Get("executable")),
			}
			app.StateTracker.SetSelection(sel)
		}

		page := panelPage{
			Selection: sel,
			HeadAsset: derivedAsset(app, sel.Head, rig.RoleHead),
			BodyAsset: derivedAsset(app, sel.Body, rig.RoleBody),
			Report:    app.StateTracker.LastReport(),
		}
		tool, err := app.mergeTool(sel.Executable)
		if tool != nil {
			page.ToolPath = tool.Executable
		}
		if err != nil {
			page.ToolWarning = "Merge tool not available: " + err.Error() + ". Please select it manually."
		}
		page.CanMerge = err == nil && sel.Head != "" && sel.Body != ""
		page.Failed = page.Report != nil && !page.Report.Succeeded()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		if err := panelTemplate.Execute(w, page); err != nil {
			log.Printf("Error rendering panel: %v", err)
		}
	})

	mux.HandleFunc("POST /merge", func(w http.ResponseWriter, r *http.Request) {
		isJSON := strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")

		var req mergeRequestBody
		if isJSON {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
				return
			}
		} else {
			if err := r.ParseForm(); err != nil {
				http.Error(w, "invalid form: "+err.Error(), http.StatusBadRequest)
				return
			}
			req = mergeRequestBody{
				Head:       strings.TrimSpace(r.PostForm.Get("head")),
				Body:       strings.TrimSpace(r.PostForm.Get("body")),
				Executable: strings.TrimSpace(r.PostForm.Get("executable")),
			}
		}
		if req.Head == "" || req.Body == "" {
			http.Error(w, "head and body are required", http.StatusBadRequest)
			return
		}
		app.StateTracker.SetSelection(rig.Selection{Head: req.Head, Body: req.Body, Executable: req.Executable})

		res, err := app.Merge(req.Head, req.Body, req.Executable)
		if !isJSON {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}

		status := http.StatusOK
		if err != nil {
			status = mergeErrorStatus(err)
		}
		var report *rig.MergeReport
		if res != nil {
			report = res.Report
		}
		if report == nil && err != nil {
			report = &rig.MergeReport{Error: err.Error()}
		}
		writeJSON(w, status, report)
	})

	mux.HandleFunc("POST /test-launch", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		tool, err := app.mergeTool(strings.TrimSpace(r.PostForm.Get("executable")))
		if tool == nil || tool.Executable == "" {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := tool.TestLaunch(); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})

	mux.HandleFunc("GET /report", func(w http.ResponseWriter, r *http.Request) {
		report := app.StateTracker.LastReport()
		if report == nil {
			http.Error(w, "No merge has run yet", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	mux.HandleFunc("GET /history", func(w http.ResponseWriter, r *http.Request) {
		app.openHistory()
		if app.History == nil {
			http.Error(w, "History not available", http.StatusServiceUnavailable)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		entries, err := app.History.Recent(r.Context(), limit)
		if err != nil {
			log.Printf("Error reading history: %v", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []rig.HistoryEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	})

	mux.HandleFunc("GET /preview.svg", func(w http.ResponseWriter, r *http.Request) {
		merged := app.StateTracker.LastMerged()
		if merged == nil {
			http.Error(w, "No merged rig available", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := rig.NewVectorRenderer(merged).RenderToSVG(w); err != nil {
			log.Printf("Error encoding preview SVG: %v", err)
		}
	})

	mux.HandleFunc("GET /preview.png", func(w http.ResponseWriter, r *http.Request) {
		merged := app.StateTracker.LastMerged()
		if merged == nil {
			http.Error(w, "No merged rig available", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := rig.NewRasterRenderer(merged).RenderToPNG(w); err != nil {
			log.Printf("Error encoding preview PNG: %v", err)
		}
	})

	// Wrap mux with logging middleware
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		mux.ServeHTTP(w, r)
	})
}

// derivedAsset shows the asset a picked rig resolves to, or why it does not
func derivedAsset(app *App, path string, role rig.Role) string {
	if path == "" {
		return "No rig selected"
	}
	r, err := app.Importer.Import(path, role)
	if err != nil {
		return "Rig not found"
	}
	if r.Asset == "" {
		return "Asset path not found"
	}
	return r.Asset
}

// mergeErrorStatus maps pipeline errors onto HTTP status codes
func mergeErrorStatus(err error) int {
	var cfgErr *rig.ConfigError
	var toolErr *rig.ToolError
	var rangeErr *rig.BlendshapeRangeError
	switch {
	case errors.As(err, &cfgErr):
		return http.StatusPreconditionFailed
	case errors.As(err, &toolErr):
		return http.StatusBadGateway
	case errors.Is(err, rig.ErrNoMergedAsset):
		return http.StatusBadGateway
	case errors.As(err, &rangeErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}
