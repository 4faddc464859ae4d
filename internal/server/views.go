package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/a-h/templ"
	shrooterrors "github.com/conneroisu/shroot/internal/errors"
)

const indexStyle = `body{font-family:system-ui,sans-serif;margin:2rem;color:#222}` +
	`li{margin:.25rem 0}.live{color:#2a7;font-size:.8em;margin-left:.5em}` +
	`code{background:#f3f3f3;padding:0 .25em}`

// IndexPage lists the pages under the page directory.
func IndexPage(pages []string, live map[string]bool) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var sb strings.Builder
		sb.WriteString(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>shroot</title><style>`)
		sb.WriteString(indexStyle)
		sb.WriteString(`</style></head><body><h1>Pages</h1>`)
		if len(pages) == 0 {
			sb.WriteString(`<p>No pages found.</p>`)
		} else {
			sb.WriteString(`<ul>`)
			for _, name := range pages {
				fmt.Fprintf(&sb, `<li><a href="/pages/%s">%s</a>`,
					templ.EscapeString(name), templ.EscapeString(name))
				if live[name] {
					sb.WriteString(`<span class="live">live</span>`)
				}
				// API routes take the name as a single escaped segment
				fmt.Fprintf(&sb, ` <a href="/api/pages/%s/components"><code>components</code></a></li>`,
					templ.EscapeString(url.PathEscape(name)))
			}
			sb.WriteString(`</ul>`)
		}
		sb.WriteString(`</body></html>`)
		_, err := io.WriteString(w, sb.String())
		return err
	})
}

// ReloadScript connects to the websocket endpoint and reloads the window
// when the page it was served for changes.
func ReloadScript(page string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		name, err := json.Marshal(page)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, `<script data-shroot-reload>
(function(){
  var page = %s;
  var proto = location.protocol === "https:" ? "wss:" : "ws:";
  var ws = new WebSocket(proto + "//" + location.host + "/ws?page=" + encodeURIComponent(page));
  ws.onmessage = function(ev){
    var msg = JSON.parse(ev.data);
    if ((msg.type === "reload" || msg.type === "fragment") && (!msg.page || msg.page === page)) location.reload();
  };
  ws.onclose = function(){ setTimeout(function(){ location.reload(); }, 1000); };
})();
</script>`, name)
		return err
	})
}

// ErrorOverlay shows the issues reported while processing a page.
func ErrorOverlay(issues []shrooterrors.Issue) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if len(issues) == 0 {
			return nil
		}
		var sb strings.Builder
		sb.WriteString(`<div id="shroot-overlay" style="position:fixed;bottom:0;left:0;right:0;max-height:40vh;overflow:auto;` +
			`background:#1e1e1e;color:#f88;font:13px monospace;padding:1em;z-index:2147483647">`)
		fmt.Fprintf(&sb, `<strong>%d issue(s)</strong><ul>`, len(issues))
		for _, issue := range issues {
			fmt.Fprintf(&sb, `<li>[%s] %s`, templ.EscapeString(issue.Code), templ.EscapeString(issue.Message))
			if issue.Component != "" {
				fmt.Fprintf(&sb, ` <em>(%s)</em>`, templ.EscapeString(issue.Component))
			}
			sb.WriteString(`</li>`)
		}
		sb.WriteString(`</ul></div>`)
		_, err := io.WriteString(w, sb.String())
		return err
	})
}

// injectBeforeBodyEnd renders components just before </body>, or at the end
// of the document when it has none.
func injectBeforeBodyEnd(ctx context.Context, document string, components ...templ.Component) (string, error) {
	var extra bytes.Buffer
	for _, c := range components {
		if err := c.Render(ctx, &extra); err != nil {
			return "", err
		}
	}
	if extra.Len() == 0 {
		return document, nil
	}
	idx := strings.LastIndex(strings.ToLower(document), "</body>")
	if idx < 0 {
		return document + extra.String(), nil
	}
	return document[:idx] + extra.String() + document[idx:], nil
}
