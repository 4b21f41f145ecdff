package httpx

import (
	"bytes"
	"html/template"
	"net/http"
)

const pageHead = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta name="referrer" content="no-referrer">
<title>{{.Title}}</title>
<style>
body{font-family:system-ui,sans-serif;display:flex;min-height:100vh;align-items:center;justify-content:center;margin:0;background:#f6f7f9;color:#1f2933}
main{max-width:28rem;padding:2rem;text-align:center}
.notice{color:#b42318}
</style>
</head>`

var landingPage = template.Must(template.New("landing").Parse(pageHead + `
<body>
<main>
<p id="status">Signing you in&hellip;</p>
<noscript><p>JavaScript is required to finish signing in. <a href="{{.SignInPath}}">Back to sign in</a></p></noscript>
</main>
<script>
(function () {
  var href = window.location.href;
  window.history.replaceState(null, "", window.location.pathname);
  var headers = {"Content-Type": "application/json", "Accept": "application/json"};
  headers[{{.CSRFHeader}}] = {{.CSRFToken}};
  fetch({{.CallbackPath}}, {
    method: "POST",
    credentials: "same-origin",
    headers: headers,
    body: JSON.stringify({url: href})
  }).then(function (r) { return r.json(); }).then(function (res) {
    if (res.message) {
      var el = document.getElementById("status");
      el.className = "notice";
      el.textContent = res.message;
      window.setTimeout(function () { window.location.replace(res.redirect_to); }, res.retry_after_ms || 0);
      return;
    }
    window.location.replace(res.redirect_to || "/");
  }).catch(function () {
    window.location.replace({{.SignInPath}});
  });
})();
</script>
</body>
</html>`))

var failurePage = template.Must(template.New("failure").Parse(pageHead + `
<body>
<main>
<p class="notice" role="alert">{{.Message}}</p>
<p>Returning to sign in&hellip; <a href="{{.SignInPath}}">Continue now</a></p>
</main>
<script>
window.setTimeout(function () { window.location.replace({{.SignInPath}}); }, {{.DelayMS}});
</script>
</body>
</html>`))

var homePage = template.Must(template.New("home").Parse(pageHead + `
<body>
<main>
<p>Signed in as <strong>{{.Name}}</strong> ({{.Role}})</p>
<form method="post" action="/auth/logout">
<input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
<button type="submit">Sign out</button>
</form>
</main>
</body>
</html>`))

type landingData struct {
	Title        string
	CallbackPath string
	SignInPath   string
	CSRFHeader   string
	CSRFToken    string
}

type failureData struct {
	Title      string
	Message    string
	SignInPath string
	DelayMS    int64
}

type homeData struct {
	Title     string
	Name      string
	Role      string
	CSRFToken string
}

// renderPage executes tmpl into a buffer first so a template error never sends a partial page.
func renderPage(w http.ResponseWriter, status int, tmpl *template.Template, data any) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
