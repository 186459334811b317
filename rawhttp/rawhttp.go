// Package rawhttp turns captured record content into something readable.
// Record parts are either a bare URI or a raw HTTP message, bodies are decoded
// and pretty printed when they are JSON, XML or HTML.
package rawhttp

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/beevik/etree"
	"github.com/devya-app/devya/domain"
	"github.com/gabriel-vasile/mimetype"
	"github.com/yosssi/gohtml"
)

// Prettify will attempt to prettify the body.
// JSON, XML, HTML can be prettified, if it cannot prettify the body it returns an empty slice
func Prettify(bodyBytes []byte) ([]byte, error) {
	if len(bodyBytes) == 0 {
		return []byte{}, nil
	}

	trimmedBody := bytes.TrimSpace(bodyBytes)

	var jsonData any
	if err := json.Unmarshal(trimmedBody, &jsonData); err == nil {
		output, err := json.MarshalIndent(jsonData, "", "  ")
		if err != nil {
			return []byte{}, fmt.Errorf("remarshalling JSON: %w", err)
		}
		return output, nil
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(trimmedBody); err == nil && doc.Root() != nil {
		doc.Indent(1)
		var output bytes.Buffer
		if _, err := doc.WriteTo(&output); err != nil {
			return []byte{}, fmt.Errorf("writing indented XML : %w", err)
		}
		return output.Bytes(), nil
	}

	// HTML is detected by mimetype or by a leading tag
	contentType := mimetype.Detect(trimmedBody).String()
	if strings.Contains(contentType, "text/html") ||
		(bytes.HasPrefix(trimmedBody, []byte("<")) && !bytes.HasPrefix(trimmedBody, []byte("<?xml"))) {
		output := gohtml.FormatBytes(trimmedBody)
		if !bytes.Equal(output, trimmedBody) && len(output) > 0 {
			return output, nil
		}
	}

	return []byte{}, nil
}

// Decode undoes a Content-Encoding. gzip and br are supported, identity and empty
// encodings return the body unchanged.
func Decode(encoding string, body []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return body, nil
	case "gzip", "x-gzip":
		gzipReader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		defer gzipReader.Close()

		decoded, err := io.ReadAll(gzipReader)
		if err != nil {
			return nil, fmt.Errorf("reading gzip content: %w", err)
		}
		return decoded, nil
	case "br":
		decoded, err := io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
		if err != nil {
			return nil, fmt.Errorf("reading brotli content : %w", err)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

// RecalculateContentLength takes a raw request / response and updates the content-length to match the body length
func RecalculateContentLength(raw []byte) (updated []byte, err error) {
	normalized := bytes.ReplaceAll(raw, []byte("\r\n"), []byte("\n"))
	parts := bytes.SplitN(normalized, []byte("\n\n"), 2)
	if len(parts) == 2 {
		headers := parts[0]
		body := parts[1]

		headerLines := bytes.Split(headers, []byte("\n"))
		newHeaders := make([][]byte, 0, len(headerLines)+1)
		for _, line := range headerLines {
			if !bytes.HasPrefix(bytes.ToLower(line), []byte("content-length:")) {
				newHeaders = append(newHeaders, line)
			}
		}
		if len(body) > 0 {
			newHeaders = append(newHeaders, []byte(fmt.Sprintf("Content-Length: %d", len(body))))
		}

		updatedHeaders := bytes.Join(newHeaders, []byte("\r\n"))
		updated := append(updatedHeaders, []byte("\r\n\r\n")...)
		updated = append(updated, body...)
		return updated, nil
	}
	return []byte{}, fmt.Errorf("malformed string : %s", normalized)
}

// ParseRequest reads a raw HTTP request, the Content-Length is fixed up first
func ParseRequest(raw []byte) (*http.Request, error) {
	updated, err := RecalculateContentLength(raw)
	if err != nil {
		return nil, fmt.Errorf("recalculating content length : %w", err)
	}
	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(updated)))
	if err != nil {
		return nil, fmt.Errorf("reading raw request : %w", err)
	}
	if req.URL.Host == "" {
		req.URL.Host = req.Host
	}
	return req, nil
}

// ParseResponse reads a raw HTTP response, the Content-Length is fixed up first
func ParseResponse(raw []byte) (*http.Response, error) {
	updated, err := RecalculateContentLength(raw)
	if err != nil {
		return nil, fmt.Errorf("recalculating content length : %w", err)
	}
	res, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(updated)), nil)
	if err != nil {
		return nil, fmt.Errorf("reading raw response : %w", err)
	}
	return res, nil
}

// PrettifyMessage formats one part of a record. Raw HTTP messages keep their head and get a
// decoded, pretty printed body, anything else is prettified as a body. Content that cannot be
// improved is returned unchanged.
func PrettifyMessage(content string) string {
	raw := []byte(content)
	var (
		head     []byte
		body     []byte
		encoding string
	)

	switch {
	case looksLikeResponse(raw):
		res, err := ParseResponse(raw)
		if err != nil {
			return content
		}
		defer res.Body.Close()
		if body, err = io.ReadAll(res.Body); err != nil {
			return content
		}
		encoding = res.Header.Get("Content-Encoding")
		head = messageHead(raw)
	case looksLikeRequest(raw):
		req, err := ParseRequest(raw)
		if err != nil {
			return content
		}
		defer req.Body.Close()
		if body, err = io.ReadAll(req.Body); err != nil {
			return content
		}
		encoding = req.Header.Get("Content-Encoding")
		head = messageHead(raw)
	default:
		pretty, err := Prettify(raw)
		if err != nil || len(pretty) == 0 {
			return content
		}
		return string(pretty)
	}

	decoded, err := Decode(encoding, body)
	if err != nil {
		decoded = body
	}
	pretty, err := Prettify(decoded)
	if err != nil || len(pretty) == 0 {
		pretty = decoded
	}
	return string(head) + string(pretty)
}

// PrettifyRecord splits record content on the record separator and prettifies every part.
func PrettifyRecord(content string) []string {
	parts := strings.Split(content, domain.RecordSeparator)
	for i, part := range parts {
		parts[i] = PrettifyMessage(part)
	}
	return parts
}

// Target returns the host and URL a record points at. The request part is either a URI,
// as sent by the backend, or a raw HTTP request.
func Target(content string) (host string, target string) {
	first, _, _ := strings.Cut(content, domain.RecordSeparator)
	first = strings.TrimLeft(first, " \t\r\n")

	if looksLikeRequest([]byte(first)) {
		if req, err := ParseRequest([]byte(first)); err == nil {
			u := *req.URL
			if u.Scheme == "" {
				u.Scheme = "http"
			}
			return req.Host, u.String()
		}
	}

	first = strings.TrimSpace(first)
	u, err := url.Parse(first)
	if err != nil || u.Host == "" {
		return "", first
	}
	return u.Hostname(), first
}

func looksLikeResponse(raw []byte) bool {
	return bytes.HasPrefix(raw, []byte("HTTP/"))
}

var methods = []string{
	http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch,
	http.MethodDelete, http.MethodConnect, http.MethodOptions, http.MethodTrace,
}

func looksLikeRequest(raw []byte) bool {
	line, _, _ := bytes.Cut(raw, []byte("\n"))
	for _, method := range methods {
		if bytes.HasPrefix(line, []byte(method+" ")) && bytes.Contains(line, []byte(" HTTP/")) {
			return true
		}
	}
	return false
}

// messageHead returns the start line and headers, including the blank line
func messageHead(raw []byte) []byte {
	normalized := bytes.ReplaceAll(raw, []byte("\r\n"), []byte("\n"))
	head, _, _ := bytes.Cut(normalized, []byte("\n\n"))
	return append(head, []byte("\n\n")...)
}
