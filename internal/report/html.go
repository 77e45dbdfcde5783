package report

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"editorswarm/internal/runner"
)

// htmlTemplate renders the human-facing session summary: a per-scenario
// pass/fail table with expandable per-instance log and error detail.
const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Editor Swarm Test Report</title>
<style>
  body { font-family: -apple-system, "Segoe UI", sans-serif; margin: 2em; color: #222; }
  h1 { font-size: 1.4em; }
  .summary { margin-bottom: 1.5em; }
  .pass { color: #1a7f37; font-weight: 600; }
  .fail { color: #cf222e; font-weight: 600; }
  table { border-collapse: collapse; width: 100%; margin-bottom: 1em; }
  th, td { border: 1px solid #d0d7de; padding: 6px 10px; text-align: left; font-size: 0.9em; }
  th { background: #f6f8fa; }
  details { margin: 0.3em 0 1em; }
  pre { background: #f6f8fa; padding: 8px; overflow-x: auto; font-size: 0.8em; }
  .errors { color: #cf222e; }
</style>
</head>
<body>
<h1>Editor Swarm Test Report</h1>
<p class="summary">
  Generated {{.GeneratedAt}} —
  {{.Summary.Total}} scenario(s),
  <span class="pass">{{.Summary.Passed}} passed</span>,
  <span class="fail">{{.Summary.Failed}} failed</span>
  ({{printf "%.1f" .PassPercent}}% pass rate)
</p>

<table>
<tr><th>Scenario</th><th>Result</th><th>Phase</th><th>Duration</th><th>Attempts</th><th>Workers</th></tr>
{{range .Results}}
<tr>
  <td>{{.Scenario}}</td>
  <td>{{if .Success}}<span class="pass">PASS</span>{{else}}<span class="fail">FAIL</span>{{end}}</td>
  <td>{{.Phase}}</td>
  <td>{{printf "%.1fs" .DurationSeconds}}</td>
  <td>{{.Attempts}}</td>
  <td>{{len .Instances}}</td>
</tr>
{{end}}
</table>

{{range .Results}}
<details{{if not .Success}} open{{end}}>
<summary>{{.Scenario}} — instance detail</summary>
{{if .Errors}}<p class="errors">Scenario errors: {{range .Errors}}{{.}}; {{end}}</p>{{end}}
<table>
<tr><th>Instance</th><th>Role</th><th>Result</th><th>Duration</th><th>Errors</th></tr>
{{range .Instances}}
<tr>
  <td>{{.InstanceID}}</td>
  <td>{{.Role}}</td>
  <td>{{if .Success}}<span class="pass">PASS</span>{{else}}<span class="fail">FAIL</span>{{end}}</td>
  <td>{{printf "%.1fs" .DurationSeconds}}</td>
  <td class="errors">{{range .Errors}}{{.}}; {{end}}</td>
</tr>
{{end}}
</table>
{{range .Instances}}{{if .LogTail}}
<details>
<summary>instance {{.InstanceID}} log tail</summary>
<pre>{{range .LogTail}}{{.}}
{{end}}</pre>
</details>
{{end}}{{end}}
</details>
{{end}}
</body>
</html>
`

var htmlTmpl = template.Must(template.New("report").Parse(htmlTemplate))

// WriteHTML writes the HTML summary and returns its path.
func (a *Aggregator) WriteHTML() (string, error) {
	if err := a.ensureDir(); err != nil {
		return "", fmt.Errorf("creating results dir: %w", err)
	}

	summary := a.Summary()
	data := struct {
		GeneratedAt string
		Summary     Summary
		PassPercent float64
		Results     []runner.TestResult
	}{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Summary:     summary,
		PassPercent: summary.PassRate * 100,
		Results:     a.Results(),
	}

	path := filepath.Join(a.dir, HTMLFileName)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	if err := htmlTmpl.Execute(f, data); err != nil {
		return "", fmt.Errorf("rendering html: %w", err)
	}
	return path, nil
}
