// Package types defines the values passed between the smoke client and its flows.
package types

import (
	"fmt"
	"net/url"
	"strings"
)

// Role identifies which GalaCash account a token belongs to.
type Role string

const (
	RoleUser      Role = "user"
	RoleBendahara Role = "bendahara"
)

// Credentials are the login inputs for one role.
type Credentials struct {
	NIM      string `yaml:"nim"`
	Password string `yaml:"password"`
}

// Tokens holds the tokens issued by /auth/login.
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// Param is a single query parameter.
type Param struct {
	Key   string
	Value interface{}
}

// Params is an ordered list of query parameters.
// Order is preserved when encoding so request lines read the same in every run.
type Params []Param

// P builds Params from alternating key/value arguments.
// Panics on an odd argument count or a non-string key.
func P(kv ...interface{}) Params {
	if len(kv)%2 != 0 {
		panic(fmt.Sprintf("types.P: odd argument count %d", len(kv)))
	}
	out := make(Params, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("types.P: key %v is not a string", kv[i]))
		}
		out = out.Set(key, kv[i+1])
	}
	return out
}

// Set returns a copy with key set to value. An existing key keeps its position.
func (p Params) Set(key string, value interface{}) Params {
	out := make(Params, len(p), len(p)+1)
	copy(out, p)
	for i := range out {
		if out[i].Key == key {
			out[i].Value = value
			return out
		}
	}
	return append(out, Param{Key: key, Value: value})
}

// With returns a copy with every pair of other merged in.
func (p Params) With(other Params) Params {
	out := p
	for _, kv := range other {
		out = out.Set(kv.Key, kv.Value)
	}
	return out
}

// Encode renders the parameters as a query string in insertion order.
func (p Params) Encode() string {
	if len(p) == 0 {
		return ""
	}
	parts := make([]string, 0, len(p))
	for _, kv := range p {
		parts = append(parts, url.QueryEscape(kv.Key)+"="+url.QueryEscape(fmt.Sprint(kv.Value)))
	}
	return strings.Join(parts, "&")
}

// String renders the parameters the way they are shown in failure output.
func (p Params) String() string {
	parts := make([]string, 0, len(p))
	for _, kv := range p {
		parts = append(parts, fmt.Sprintf("%s=%v", kv.Key, kv.Value))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
