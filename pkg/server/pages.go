package server

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/Masterminds/sprig"

	"github.com/polisai/polis-relay/pkg/router"
)

const loginTemplate = `<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Login required</title>
    <style>
      body { font-family: Arial, sans-serif; background-color: #f3f4f6; display: flex; justify-content: center; align-items: center; height: 100vh; margin: 0; }
      .login-container { background: white; padding: 2rem; border-radius: 8px; box-shadow: 0 4px 6px rgba(0, 0, 0, 0.1); width: 300px; text-align: center; }
      .avatar { width: 100px; height: 100px; border-radius: 50%; margin-bottom: 1rem; }
      h2 { color: #1a202c; font-size: 1.5rem; margin-bottom: 1rem; }
      input[type="password"] { width: 100%; padding: 0.5rem; margin: 0.5rem 0; border: 1px solid #cbd5e0; border-radius: 4px; }
      button { width: 100%; padding: 0.75rem; background-color: #4299e1; color: white; border: none; border-radius: 4px; cursor: pointer; font-size: 1rem; }
      button:hover { background-color: #2b6cb0; }
      .error-message { color: #f87171; margin-top: 15px; font-weight: bold; }
    </style>
  </head>
  <body>
    <div class="login-container">
      <img src="{{ .AvatarURL }}" alt="Avatar" class="avatar">
      <h2>Login required</h2>
      <p>Enter the password to access the API proxy.</p>
      <form action="/login" method="post">
        <label for="password">Password:</label><br>
        <input type="password" id="password" name="password" required><br>
        <button type="submit">Log in</button>
      </form>
      {{- with .Error }}
      <p class="error-message">{{ . }}</p>
      {{- end }}
    </div>
  </body>
</html>
`

const dashboardTemplate = `<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>API Proxy</title>
    <style>
      body { font-family: Arial, sans-serif; background-color: #f3f4f6; margin: 0; padding: 2rem; color: #1a202c; }
      .container { max-width: 760px; margin: 0 auto; background: white; padding: 2rem; border-radius: 8px; box-shadow: 0 4px 6px rgba(0, 0, 0, 0.1); }
      table { width: 100%; border-collapse: collapse; }
      th, td { text-align: left; padding: 0.5rem; border-bottom: 1px solid #e2e8f0; }
      code { background: #edf2f7; padding: 0.1rem 0.3rem; border-radius: 4px; }
    </style>
  </head>
  <body>
    <div class="container">
      <h1>API Proxy</h1>
      <p>{{ len .Routes }} endpoint{{ if ne (len .Routes) 1 }}s{{ end }} served from <code>{{ .Domain }}</code>.</p>
      <table>
        <thead><tr><th>Name</th><th>Proxy endpoint</th><th>Upstream</th></tr></thead>
        <tbody>
        {{- range .Routes }}
          <tr>
            <td>{{ trimPrefix "/" .Prefix | title }}</td>
            <td><code>https://{{ $.Domain }}{{ .Prefix }}</code></td>
            <td><code>{{ .Upstream }}</code></td>
          </tr>
        {{- end }}
        </tbody>
      </table>
    </div>
  </body>
</html>
`

var (
	loginPage     = template.Must(template.New("login").Funcs(sprig.FuncMap()).Parse(loginTemplate))
	dashboardPage = template.Must(template.New("dashboard").Funcs(sprig.FuncMap()).Parse(dashboardTemplate))
)

// Pages renders the login form and the dashboard.
type Pages struct {
	AvatarURL string
	Domain    string
}

type loginData struct {
	AvatarURL string
	Error     string
}

type dashboardRoute struct {
	Prefix   string
	Upstream string
}

type dashboardData struct {
	Domain string
	Routes []dashboardRoute
}

// RenderLogin writes the login form with status, showing errMsg when set.
func (p *Pages) RenderLogin(w http.ResponseWriter, status int, errMsg string) error {
	return render(w, status, loginPage, loginData{AvatarURL: p.AvatarURL, Error: errMsg})
}

// RenderDashboard writes the landing page listing routes.
func (p *Pages) RenderDashboard(w http.ResponseWriter, routes *router.Table) error {
	data := dashboardData{Domain: p.Domain}
	for _, route := range routes.Routes() {
		data.Routes = append(data.Routes, dashboardRoute{
			Prefix:   route.Prefix,
			Upstream: route.Upstream.String(),
		})
	}
	return render(w, http.StatusOK, dashboardPage, data)
}

// render executes tmpl into a buffer first so a template failure can
// still be answered with a clean 500.
func render(w http.ResponseWriter, status int, tmpl *template.Template, data any) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=UTF-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
