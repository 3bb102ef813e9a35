package server

import (
	"context"
	"io"
	"strconv"

	"github.com/a-h/templ"

	"github.com/conneroisu/pagesmith/internal/preview"
)

const viewerScript = `<script>
(function () {
  var frame = document.getElementById("preview");
  var seq = Number(frame.dataset.seq || 0);
  function connect() {
    var scheme = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(scheme + location.host + "/ws");
    ws.onmessage = function (event) {
      var msg = JSON.parse(event.data);
      if (msg.type === "document" && msg.seq >= seq) {
        seq = msg.seq;
        frame.srcdoc = msg.html;
      }
    };
    ws.onclose = function () { setTimeout(connect, 1000); };
  }
  connect();
})();
</script>`

// Viewer renders the page hosting the preview. The document runs in a frame
// sandboxed to scripts only, so it cannot reach the viewer's origin.
func Viewer(doc preview.Document) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`+
			`<title>Pagesmith</title>`+
			`<style>html,body{margin:0;height:100%}iframe{border:0;width:100%;height:100%;display:block}</style>`+
			`</head><body>`+
			`<iframe id="preview" title="Preview" sandbox="allow-scripts" data-seq="`+strconv.FormatUint(doc.Seq, 10)+
			`" srcdoc="`+templ.EscapeString(doc.HTML)+`"></iframe>`+
			viewerScript+
			`</body></html>`)
		return err
	})
}
