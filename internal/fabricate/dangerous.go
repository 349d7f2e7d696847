package fabricate

import "path/filepath"

// dangerousHomeFiles lists credential- and secret-bearing paths under the
// real user's home directory that no profile may bind read-write, no
// matter what its files/platform/resources entries ask for. Grounded on
// sandbox/util/dangerous.go's DANGEROUS_FILES table, trimmed to the
// subset relevant to an arbitrary sandboxed desktop application rather
// than a package-manager invocation (no CWD-relative .env/.git/hooks
// entries, since Antimony sandboxes don't run inside a project checkout).
var dangerousHomeFiles = []string{
	".ssh",
	".gnupg",
	".aws",
	".gcloud",
	".config/gcloud",
	".kube",
	".docker/config.json",
	".netrc",
}

// MandatoryDenyPatterns returns the absolute, home-rooted paths the file
// fabricator must always mount read-only (or hide entirely) regardless of
// what the profile's own files map requests.
func MandatoryDenyPatterns(home string) []string {
	if home == "" {
		return nil
	}
	patterns := make([]string, 0, len(dangerousHomeFiles))
	for _, f := range dangerousHomeFiles {
		patterns = append(patterns, filepath.Join(home, f))
	}
	return patterns
}
