package httpd

import "testing"

func TestContentType(t *testing.T) {
	tt := map[string]string{
		"a.txt":          "text/plain; charset=utf-8",
		"index.html":     "text/html; charset=utf-8",
		"INDEX.HTML":     "text/html; charset=utf-8",
		"style.css":      "text/css; charset=utf-8",
		"app.js":         "text/javascript; charset=utf-8",
		"photo.jpg":      "image/jpeg",
		"photo.jpeg":     "image/jpeg",
		"logo.png":       "image/png",
		"archive.zip":    "application/zip",
		"binary":         "application/octet-stream",
		"data.tar.gz":    "application/octet-stream",
		"dir.html/thing": "application/octet-stream",
	}

	for name, expected := range tt {
		for i := 0; i < 2; i++ {
			if received := ContentType(name); received != expected {
				t.Fatalf("wrong content type for %s - expected: %s\treceived: %s", name, expected, received)
			}
		}
	}
}

func TestAcceptsGzip(t *testing.T) {
	tt := map[string]bool{
		"":                   false,
		"gzip":               true,
		"deflate, gzip":      true,
		"br;q=1.0, gzip;q=0": false,
		"gzip; q=0.5":        true,
		"identity":           false,
	}

	for ae, expected := range tt {
		req := &Request{}
		if ae != "" {
			req.Header.Add("Accept-Encoding", ae)
		}
		if received := acceptsGzip(req); received != expected {
			t.Fatalf("wrong result for %q - expected: %v\treceived: %v", ae, expected, received)
		}
	}
}
