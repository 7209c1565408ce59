package bitget

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"sort"
	"strings"
)

// canonicalQuery sorts parameters by key and joins them as k=v&k=v. The
// same string is used both on the wire and inside the signed message;
// any divergence between the two produces signature mismatches.
func canonicalQuery(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}

// signingMessage builds the canonical message:
//
//	timestamp + METHOD + path [+ "?" + canonicalQuery] [+ body]
//
// GETs include the sorted query string; POSTs append the exact JSON body
// string that is transmitted.
func signingMessage(timestamp, method, path, query, body string) string {
	var b strings.Builder
	b.WriteString(timestamp)
	b.WriteString(strings.ToUpper(method))
	b.WriteString(path)
	if query != "" {
		b.WriteByte('?')
		b.WriteString(query)
	}
	b.WriteString(body)
	return b.String()
}

// sign computes base64(HMAC_SHA256(secret, message)).
func sign(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
