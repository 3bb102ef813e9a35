package validation

import (
	"net/url"
	"strings"
	"testing"
)

func FuzzAssetURL(f *testing.F) {
	for _, seed := range []string{
		"https://cdn.tailwindcss.com",
		"http://localhost:8080/app.js?v=1",
		"javascript:alert(1)",
		`https://x.example/" onload="x`,
		"",
	} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, raw string) {
		if AssetURL(raw) != nil {
			return
		}
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("accepted unparseable URL %q", raw)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			t.Fatalf("accepted scheme %q", u.Scheme)
		}
		if strings.ContainsAny(raw, "\"'<>` ") {
			t.Fatalf("accepted URL with markup characters %q", raw)
		}
	})
}
