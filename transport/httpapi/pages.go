package httpapi

import (
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/goliatone/go-calendar-sync/handshake"
)

// callbackPage is the single template every callback branch renders. The
// script it carries posts exactly one handshake message to the opener and
// then closes the window; without an opener it redirects into the app.
type callbackPage struct {
	Heading string
	Detail  string

	Message      handshake.Message
	TargetOrigin string
	FallbackURL  string

	// PostDelay defers the postMessage itself (diagnostic branch only);
	// CloseDelay is the grace period between posting and window.close.
	PostDelay  time.Duration
	CloseDelay time.Duration
}

type callbackPageData struct {
	Heading string
	Detail  string

	Payload      template.JS
	TargetOrigin string
	FallbackURL  string

	DeferPost    bool
	PostDelayMS  template.JS
	CloseDelayMS template.JS
}

var callbackTemplate = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Heading}}</title>
</head>
<body style="font-family:system-ui;text-align:center;margin-top:80px">
<h2>{{.Heading}}</h2>
<p>{{.Detail}}</p>
<script>
(function () {
	var payload = {{.Payload}};
	var target = {{.TargetOrigin}};
	if (window.opener) {
		var post = function () {
			window.opener.postMessage(payload, target);
			window.setTimeout(function () { window.close(); }, {{.CloseDelayMS}});
		};
		{{if .DeferPost}}window.setTimeout(post, {{.PostDelayMS}});{{else}}post();{{end}}
	} else {
		window.location.replace({{.FallbackURL}});
	}
})();
</script>
</body>
</html>
`))

func (h *Handler) renderPage(c echo.Context, page callbackPage) error {
	payload, err := handshake.Encode(page.Message)
	if err != nil {
		return fmt.Errorf("httpapi: encode handshake message: %w", err)
	}

	data := callbackPageData{
		Heading:      page.Heading,
		Detail:       page.Detail,
		Payload:      template.JS(payload),
		TargetOrigin: page.TargetOrigin,
		FallbackURL:  page.FallbackURL,
		DeferPost:    page.PostDelay > 0,
		PostDelayMS:  jsMilliseconds(page.PostDelay),
		CloseDelayMS: jsMilliseconds(page.CloseDelay),
	}

	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	if err := callbackTemplate.Execute(c.Response(), data); err != nil {
		return fmt.Errorf("httpapi: render callback page: %w", err)
	}
	return nil
}

func jsMilliseconds(d time.Duration) template.JS {
	if d < 0 {
		d = 0
	}
	return template.JS(strconv.FormatInt(d.Milliseconds(), 10))
}
