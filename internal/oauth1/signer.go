// Package oauth1 builds OAuth1.0a HMAC-SHA1 signatures and Authorization
// headers for outbound platform requests.
package oauth1

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrMissingConsumerSecret is returned when signing is attempted without a
// consumer secret. This is a configuration bug, not a runtime condition.
var ErrMissingConsumerSecret = errors.New("oauth1: consumer secret is required")

// Consumer is the application's OAuth1.0a consumer key pair, supplied by the
// host configuration.
type Consumer struct {
	Key    string
	Secret string
}

// Nonce returns a fresh single-use value: 16 random bytes, hex encoded.
func Nonce() string {
	buf := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		// crypto/rand failing means the process has no usable entropy source;
		// nothing sensible can continue.
		panic(fmt.Sprintf("oauth1: read random nonce: %v", err))
	}
	return hex.EncodeToString(buf)
}

// Timestamp returns the request timestamp: Unix seconds as a decimal string.
func Timestamp(now time.Time) string {
	return strconv.FormatInt(now.Unix(), 10)
}

// PercentEncode applies RFC3986 encoding as required by OAuth1.0a: unreserved
// characters (A-Za-z0-9-._~) stay literal, everything else becomes %XX with
// uppercase hex. Space encodes to %20, never "+".
func PercentEncode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '.', c == '_', c == '~':
			b.WriteByte(c)
		default:
			b.WriteString(fmt.Sprintf("%%%02X", c))
		}
	}
	return b.String()
}

// baseURL normalizes a request URL for the signature base string: lowercase
// scheme and host, default ports stripped, query and fragment dropped. Query
// parameters are signed through the parameter set instead.
func baseURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("oauth1: parse request url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path, nil
}

// SignatureBaseString builds the canonical string that gets signed: the
// uppercased method, the normalized base URL, and the percent-encoded
// parameter set sorted by encoded key then encoded value, joined with '&' and
// each segment percent-encoded once more.
func SignatureBaseString(method, rawURL string, params map[string]string) (string, error) {
	normalized, err := baseURL(rawURL)
	if err != nil {
		return "", err
	}

	// Sort on the encoded key, then the encoded value; sorting the joined
	// "k=v" strings instead would let the '=' byte outrank characters that
	// are legal in keys, misordering a key that prefixes another.
	type pair struct{ key, value string }
	encoded := make([]pair, 0, len(params))
	for k, v := range params {
		encoded = append(encoded, pair{PercentEncode(k), PercentEncode(v)})
	}
	sort.Slice(encoded, func(i, j int) bool {
		if encoded[i].key != encoded[j].key {
			return encoded[i].key < encoded[j].key
		}
		return encoded[i].value < encoded[j].value
	})

	pairs := make([]string, 0, len(encoded))
	for _, p := range encoded {
		pairs = append(pairs, p.key+"="+p.value)
	}
	paramString := strings.Join(pairs, "&")

	return strings.ToUpper(method) + "&" + PercentEncode(normalized) + "&" + PercentEncode(paramString), nil
}

// Sign computes the HMAC-SHA1 signature of the base string, keyed by
// "encodedConsumerSecret&encodedTokenSecret". The token secret is empty for
// 2-legged calls.
func Sign(baseString, consumerSecret, tokenSecret string) string {
	key := PercentEncode(consumerSecret) + "&" + PercentEncode(tokenSecret)
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(baseString))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// AuthorizationHeader builds the complete "OAuth ..." header value for one
// request. params are the request's query/body parameters; they participate
// in the signature but only oauth_* protocol parameters appear in the header.
// token may be empty for 2-legged request-token calls.
func AuthorizationHeader(c Consumer, token, tokenSecret, method, rawURL string, params map[string]string) (string, error) {
	return authorizationHeader(c, token, tokenSecret, method, rawURL, params, Nonce(), Timestamp(time.Now()))
}

func authorizationHeader(c Consumer, token, tokenSecret, method, rawURL string, params map[string]string, nonce, timestamp string) (string, error) {
	if c.Secret == "" {
		return "", ErrMissingConsumerSecret
	}

	oauthParams := map[string]string{
		"oauth_consumer_key":     c.Key,
		"oauth_nonce":            nonce,
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        timestamp,
		"oauth_version":          "1.0",
	}
	if token != "" {
		oauthParams["oauth_token"] = token
	}

	all := make(map[string]string, len(params)+len(oauthParams))
	for k, v := range params {
		all[k] = v
	}
	for k, v := range oauthParams {
		all[k] = v
	}

	base, err := SignatureBaseString(method, rawURL, all)
	if err != nil {
		return "", err
	}
	oauthParams["oauth_signature"] = Sign(base, c.Secret, tokenSecret)

	keys := make([]string, 0, len(oauthParams))
	for k := range oauthParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	header := make([]string, 0, len(keys))
	for _, k := range keys {
		header = append(header, PercentEncode(k)+`="`+PercentEncode(oauthParams[k])+`"`)
	}
	return "OAuth " + strings.Join(header, ", "), nil
}
