package logging

import (
	"log/slog"
	"regexp"

	"github.com/m-mizutani/masq"
)

// credentialPattern matches bearer/basic authorization values and bare JWTs.
var credentialPattern = regexp.MustCompile(
	`(?i)^(bearer|basic)\s+\S+$|^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`,
)

// secretFields are attribute keys and struct fields whose values are masked
// wherever they appear, including inside routine metadata and forwarded
// request headers.
var secretFields = []string{
	"authorization", "Authorization",
	"cookie", "Cookie", "set-cookie", "Set-Cookie",
	"password", "secret", "token",
	"api_key", "apiKey", "access_token", "accessToken", "refresh_token", "refreshToken",
	"credentials", "session",
}

// DefaultRedactOptions returns the masq options every handler built by this
// package applies.
func DefaultRedactOptions() []masq.Option {
	opts := make([]masq.Option, 0, len(secretFields)+3)
	for _, name := range secretFields {
		opts = append(opts, masq.WithFieldName(name))
	}

	return append(opts,
		masq.WithFieldPrefix("secret"),
		masq.WithFieldPrefix("private"),
		masq.WithRegex(credentialPattern),
	)
}

// NewReplaceAttr returns a slog ReplaceAttr that masks secrets. Extra
// options extend the defaults.
func NewReplaceAttr(extra ...masq.Option) func(groups []string, a slog.Attr) slog.Attr {
	return masq.New(append(DefaultRedactOptions(), extra...)...)
}
