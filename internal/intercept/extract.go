package intercept

import (
	"bytes"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// Descriptor is one outgoing request as reported by the browser.
type Descriptor struct {
	Method      string       `json:"method"`
	URL         string       `json:"url"`
	// TabID is -1 for requests that do not belong to a tab.
	TabID       int          `json:"tabId"`
	RequestBody *RequestBody `json:"requestBody,omitempty"`
}

// RequestBody carries a decoded form or the raw upload bytes.
type RequestBody struct {
	FormData map[string][]string `json:"formData,omitempty"`
	Raw      []RawPart           `json:"raw,omitempty"`
}

// RawPart is one chunk of a raw request body. Bytes are base64 in JSON.
type RawPart struct {
	Bytes []byte `json:"bytes"`
}

// Extractor pulls the search query out of in-scope requests.
type Extractor struct {
	rules *Rules
}

// NewExtractor creates an Extractor for rules.
func NewExtractor(rules *Rules) *Extractor {
	return &Extractor{rules: rules}
}

// Extract returns the query of an in-scope search request. The URL query is
// probed first, then form fields, then the raw body.
func (x *Extractor) Extract(d Descriptor) (string, bool) {
	u, err := url.Parse(d.URL)
	if err != nil || !x.rules.InScope(u) {
		return "", false
	}

	q := u.Query()
	for _, p := range x.rules.Params {
		if v := q.Get(p); v != "" {
			return v, true
		}
	}
	if d.RequestBody == nil {
		return "", false
	}

	for _, p := range x.rules.Params {
		for _, v := range d.RequestBody.FormData[p] {
			if v != "" {
				return v, true
			}
		}
	}
	return x.fromRaw(d.RequestBody.Raw)
}

func (x *Extractor) fromRaw(parts []RawPart) (string, bool) {
	if len(parts) == 0 {
		return "", false
	}
	var buf bytes.Buffer
	for _, p := range parts {
		buf.Write(p.Bytes)
	}
	if !utf8.Valid(buf.Bytes()) {
		return "", false
	}
	raw := buf.String()

	decoded, err := url.PathUnescape(raw)
	if err != nil {
		decoded = raw
	}
	if body := strings.TrimSpace(decoded); gjson.Valid(body) {
		doc := gjson.Parse(body)
		if doc.IsObject() {
			for _, p := range x.rules.Params {
				if v := doc.Get(gjson.Escape(p)); v.Type == gjson.String && v.String() != "" {
					return v.String(), true
				}
			}
		}
		return "", false
	}

	// ParseQuery keeps the well-formed pairs when it reports an error.
	form, _ := url.ParseQuery(strings.TrimSpace(raw))
	for _, p := range x.rules.Params {
		if v := form.Get(p); v != "" {
			return v, true
		}
	}
	return "", false
}
