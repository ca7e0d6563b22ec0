package executor

import (
	"strings"

	"github.com/alessio/shellescape"
)

// ContentType is sent with every test request.
const ContentType = "text/plain"

type commandBuilder []string

func (b *commandBuilder) add(args ...string) {
	for _, a := range args {
		*b = append(*b, shellescape.Quote(a))
	}
}

func (b commandBuilder) String() string {
	return strings.Join(b, " ")
}

// CurlCommand builds a shell-safe curl invocation that POSTs payload to url
// the same way the executor does.
func CurlCommand(url string, payload []byte) string {
	var b commandBuilder

	b.add("curl", "-H", "Content-Type: "+ContentType, url, "--data-binary", string(payload))

	return b.String()
}
