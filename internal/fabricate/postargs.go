package fabricate

import (
	"net/url"
	"os"
	"strings"

	"github.com/antimony-sandbox/antimony/profile"
)

// FabricatePostArgs implements C7's §4.7.5: the final fabricator, run
// after every other one, that appends profile.arguments and the caller's
// own command-tail tokens. When files.passthrough is enabled, tokens that
// look like an existing path or a file:// URI are additionally bound
// read-only into the sandbox at their own path so the sandboxed program
// can actually open what it was told to.
func FabricatePostArgs(p *profile.Profile, tail []string) (commandArgs []string, binds []string) {
	commandArgs = append(commandArgs, p.Arguments...)
	commandArgs = append(commandArgs, tail...)

	passthrough := p.Files != nil && p.Files.Passthrough != nil && *p.Files.Passthrough
	if !passthrough {
		return commandArgs, nil
	}

	seen := map[string]bool{}
	for _, token := range commandArgs {
		path := passthroughPath(token)
		if path == "" || seen[path] {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		seen[path] = true
		binds = append(binds, "--ro-bind-try", path, path)
	}
	return commandArgs, binds
}

// passthroughPath extracts the filesystem path a command-tail token
// refers to, if any: either the token itself (when it looks like a path)
// or the path component of a file:// URI.
func passthroughPath(token string) string {
	if strings.HasPrefix(token, "file://") {
		if u, err := url.Parse(token); err == nil {
			return u.Path
		}
		return ""
	}
	if strings.HasPrefix(token, "/") || strings.HasPrefix(token, "./") || strings.HasPrefix(token, "~") {
		return token
	}
	return ""
}
