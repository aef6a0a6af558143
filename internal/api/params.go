package api

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// parsePushParams merges the V2 request sources into one parameter map.
// Precedence, low to high: query string, then body (JSON or form). Keys from
// the query are lower-cased here; body keys keep their case and are matched
// case-insensitively during normalization. An unparseable body is ignored
// and the query params stand alone.
func parsePushParams(r *http.Request) map[string]any {
	params := make(map[string]any)

	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			params[strings.ToLower(key)] = values[0]
		}
	}

	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch contentType {
	case "application/json":
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			for key, val := range body {
				params[key] = val
			}
		}
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseForm(); err == nil {
			for key, values := range r.PostForm {
				if len(values) > 0 {
					params[strings.ToLower(key)] = values[0]
				}
			}
		}
	}

	return params
}

// parseV1Params merges the V1 sources. Precedence, high to low: path
// segments, query string, form body. Path segments arrive URL-decoded by the
// router; the others are merged only where the key is still absent.
func parseV1Params(r *http.Request, pathParams map[string]string) map[string]any {
	params := make(map[string]any, len(pathParams))
	for key, val := range pathParams {
		params[strings.ToLower(key)] = val
	}

	for key, values := range r.URL.Query() {
		lower := strings.ToLower(key)
		if _, ok := params[lower]; !ok && len(values) > 0 {
			params[lower] = values[0]
		}
	}

	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err == nil {
			for key, values := range r.PostForm {
				lower := strings.ToLower(key)
				if _, ok := params[lower]; !ok && len(values) > 0 {
					params[lower] = values[0]
				}
			}
		}
	}

	return params
}

// v1PathParams maps the positional V1 route segments onto field names:
//
//	/:device_key
//	/:device_key/:body
//	/:device_key/:title/:body
//	/:device_key/:title/:subtitle/:body
func v1PathParams(segments []string) map[string]string {
	params := make(map[string]string, len(segments))
	decoded := make([]string, len(segments))
	for i, s := range segments {
		decoded[i] = safeDecode(s)
	}

	switch len(decoded) {
	case 1:
		params["device_key"] = decoded[0]
	case 2:
		params["device_key"] = decoded[0]
		params["body"] = decoded[1]
	case 3:
		params["device_key"] = decoded[0]
		params["title"] = decoded[1]
		params["body"] = decoded[2]
	case 4:
		params["device_key"] = decoded[0]
		params["title"] = decoded[1]
		params["subtitle"] = decoded[2]
		params["body"] = decoded[3]
	}
	return params
}

// safeDecode URL-decodes a path segment, keeping the original on error.
func safeDecode(s string) string {
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// parseDeviceKeys accepts the batch alias list either as a comma-separated
// string or as an array, trimming and dropping empties.
func parseDeviceKeys(raw any) ([]string, bool) {
	switch keys := raw.(type) {
	case string:
		var out []string
		for _, k := range strings.Split(keys, ",") {
			if trimmed := strings.TrimSpace(k); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out, true
	case []any:
		var out []string
		for _, k := range keys {
			if trimmed := strings.TrimSpace(fmt.Sprint(k)); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out, true
	case []string:
		var out []string
		for _, k := range keys {
			if trimmed := strings.TrimSpace(k); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out, true
	default:
		return nil, false
	}
}
