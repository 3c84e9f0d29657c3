package reload

import (
	"fmt"

	sferrors "github.com/conneroisu/siteforge/internal/errors"
)

const (
	// RoutePrefix is reserved for the broadcaster; everything else is
	// proxied to the page server.
	RoutePrefix = "/__siteforge"
	wsRoute     = RoutePrefix + "/ws"
	clientRoute = RoutePrefix + "/client.js"
)

// snippet is injected into every proxied HTML page.
var snippet = []byte(`<script src="` + clientRoute + `" async></script>`)

var clientJS = fmt.Sprintf(`(function () {
  var overlayID = %q;
  var delay = 1000;

  function swapStylesheet(path) {
    var name = path.split("/").pop();
    var links = document.querySelectorAll('link[rel="stylesheet"]');
    var swapped = false;
    links.forEach(function (link) {
      var href = link.getAttribute("href") || "";
      var clean = href.split("?")[0];
      if (!name || clean.split("/").pop() === name) {
        link.setAttribute("href", clean + "?v=" + Date.now());
        swapped = true;
      }
    });
    if (!swapped) {
      location.reload();
    }
  }

  function showOverlay(html) {
    var old = document.getElementById(overlayID);
    if (old) {
      old.remove();
    }
    if (html) {
      document.body.insertAdjacentHTML("beforeend", html);
    }
  }

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + %q);
    ws.onopen = function () {
      delay = 1000;
    };
    ws.onmessage = function (e) {
      var msg = JSON.parse(e.data);
      switch (msg.type) {
        case "reload":
          location.reload();
          break;
        case "inject":
          swapStylesheet(msg.path || "");
          break;
        case "notify":
          showOverlay(msg.html || "");
          break;
      }
    };
    ws.onclose = function () {
      setTimeout(connect, delay);
      delay = Math.min(delay * 2, 10000);
    };
  }

  connect();
})();
`, sferrors.OverlayID, wsRoute)
