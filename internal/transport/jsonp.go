package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
)

// callbackParam is the query parameter naming the reply function.
const callbackParam = "callback"

// validCallback restricts callback names to JavaScript identifiers; the
// remote echoes the name verbatim into the reply.
var validCallback = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$.]*$`)

// Request describes one remote call as the query parameters of a GET.
type Request struct {
	Params url.Values
}

// NewRequest builds a request for action. Additional key/value pairs are
// given as alternating strings.
func NewRequest(action string, kv ...string) Request {
	p := url.Values{}
	p.Set("action", action)

	for i := 0; i+1 < len(kv); i += 2 {
		p.Set(kv[i], kv[i+1])
	}

	return Request{Params: p}
}

// Action returns the remote action name, used for logging and errors.
func (r Request) Action() string {
	return r.Params.Get("action")
}

// ValidateCallback checks that name can be used as the reply function.
func ValidateCallback(name string) error {
	if !validCallback.MatchString(name) {
		return fmt.Errorf("transport: invalid callback name %q", name)
	}

	return nil
}

// buildURL appends the request parameters and the callback name to endpoint.
func buildURL(endpoint string, req Request, callback string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("transport: parsing endpoint: %w", err)
	}

	q := u.Query()
	for k, vs := range req.Params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}

	q.Set(callbackParam, callback)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// unwrapJSONP extracts the JSON argument from a reply script of the form
// `callback(<json>);`. A script calling any other function, or carrying an
// argument that is not valid JSON, is a delivery failure: it is what a
// browser would see as a script that failed to run.
func unwrapJSONP(script []byte, callback string) (json.RawMessage, error) {
	s := bytes.TrimSpace(script)
	s = bytes.TrimPrefix(s, []byte("/**/"))
	s = bytes.TrimSpace(s)

	prefix := []byte(callback + "(")
	if !bytes.HasPrefix(s, prefix) {
		return nil, errors.New("reply does not invoke the expected callback")
	}

	s = bytes.TrimSuffix(s, []byte(";"))
	s = bytes.TrimSpace(s)

	if !bytes.HasSuffix(s, []byte(")")) {
		return nil, errors.New("reply callback invocation is not terminated")
	}

	body := bytes.TrimSpace(s[len(prefix) : len(s)-1])
	if !json.Valid(body) {
		return nil, errors.New("reply argument is not valid JSON")
	}

	return json.RawMessage(body), nil
}
