package wanlib

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// ResourceInfo is what a probe learns about a remote resource.
type ResourceInfo struct {
	FileName     string
	TotalBytes   int64
	AcceptRanges bool
}

// Probe issues a HEAD request for rawURL.
func Probe(ctx context.Context, client *http.Client, rawURL string) (*ResourceInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", DEF_USER_AGENT)
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	info := &ResourceInfo{
		FileName:     fileNameFromResponse(resp),
		AcceptRanges: strings.EqualFold(resp.Header.Get("Accept-Ranges"), "bytes"),
	}
	if resp.ContentLength > 0 {
		info.TotalBytes = resp.ContentLength
	}
	return info, nil
}

func fileNameFromResponse(resp *http.Response) string {
	u := resp.Request.URL
	return FileNameFor(u, resp.Header.Get("Content-Disposition"))
}

// FileNameFor picks a file name from a Content-Disposition header, then the
// last url path segment, then DEF_FILE_NAME.
func FileNameFor(u *url.URL, contentDisposition string) string {
	var fn string
	if contentDisposition != "" {
		if _, params, err := mime.ParseMediaType(contentDisposition); err == nil {
			fn = params["filename"]
		}
	}
	if fn == "" && u != nil {
		fn = path.Base(u.Path)
		if fn == "/" || fn == "." {
			fn = ""
		}
	}
	fn = SanitizeFilename(fn)
	if fn == "" {
		fn = DEF_FILE_NAME
	}
	return fn
}

// SanitizeFilename replaces characters that are invalid in file names on
// common file systems and strips control characters.
func SanitizeFilename(name string) string {
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	name = strings.Map(func(r rune) rune {
		switch {
		case r < 32:
			return -1
		case strings.ContainsRune(`<>:"/\|?*`, r):
			return '_'
		}
		return r
	}, name)
	name = strings.Trim(name, " .")
	return name
}

// needsFileName reports whether dest names a directory rather than a file.
func needsFileName(fs afero.Fs, dest string) bool {
	if dest == "" || strings.HasSuffix(dest, "/") || strings.HasSuffix(dest, string(os.PathSeparator)) {
		return true
	}
	fi, err := fs.Stat(dest)
	return err == nil && fi.IsDir()
}

// parseContentRange parses "bytes start-end/total" and "bytes */total".
// total is -1 when the server reports "*".
func parseContentRange(v string) (start, total int64, err error) {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "bytes ") {
		return 0, 0, fmt.Errorf("invalid content-range %q", v)
	}
	v = strings.TrimPrefix(v, "bytes ")
	rng, tot, ok := strings.Cut(v, "/")
	if !ok {
		return 0, 0, fmt.Errorf("invalid content-range %q", v)
	}
	total = -1
	if tot != "*" {
		if total, err = strconv.ParseInt(tot, 10, 64); err != nil {
			return 0, 0, fmt.Errorf("invalid content-range total %q", tot)
		}
	}
	if rng == "*" {
		return -1, total, nil
	}
	s, _, ok := strings.Cut(rng, "-")
	if !ok {
		return 0, 0, fmt.Errorf("invalid content-range %q", v)
	}
	if start, err = strconv.ParseInt(s, 10, 64); err != nil {
		return 0, 0, fmt.Errorf("invalid content-range start %q", s)
	}
	return start, total, nil
}

func joinDest(dir, name string) string {
	return filepath.Join(dir, name)
}
