package server

// indexPage is the operator settings form. Deliberately plain, it is a
// single page served to whoever runs the terminal, not a frontend.
const indexPage = `<!doctype html>
<title>Re-Entry Engine</title>
<h2>Engine Control</h2>
{{if .Message}}<p><em>{{.Message}}</em></p>{{end}}
<p>Status: {{if .Running}}running{{else}}stopped{{end}}, tracked orders: {{.Tracked}}</p>
<form method="post" action="/start">
  <label>Mode:</label>
  <select name="mode">
    <option value="AUTOMATIC" {{if eq .Settings.Mode "AUTOMATIC"}}selected{{end}}>Automatic</option>
    <option value="MANUAL" {{if eq .Settings.Mode "MANUAL"}}selected{{end}}>Manual</option>
  </select><br><br>
  <label>Wait (s):</label><input name="adjustWaitSec" type="number" step="0.01" value="{{.Settings.AdjustWaitSec}}"><br><br>
  <label>Adjust %:</label><input name="adjustPct" type="number" step="0.01" value="{{.Settings.AdjustPct}}"><br><br>
  <label>Pip Dist:</label><input name="pipDistance" type="number" step="0.1" value="{{.Settings.PipDistance}}"><br><br>
  <label>
    <input type="checkbox" name="enableMarketTracking" {{if .Settings.EnableMarketTracking}}checked{{end}}>
    Enable Market-Order Re-Entry
  </label><br><br>
  <button type="submit">Start Engine</button>
</form>
<form method="post" action="/stop" style="margin-top:10px;">
  <button type="submit">Stop Engine</button>
</form>
`
