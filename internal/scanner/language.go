package scanner

import (
	"strings"

	"github.com/l3aro/go-decomp/internal/config"
)

// suffixKinds maps input file suffixes to the front-end that loads them.
// Longer suffixes are listed first so ".cfg.yaml" wins over a bare ".yaml".
var suffixKinds = []struct {
	suffix string
	kind   config.Frontend
}{
	{".cfg.yaml", config.FrontendYAML},
	{".cfg.yml", config.FrontendYAML},
	{".ll", config.FrontendLLVM},
	{".go", config.FrontendGoSrc},
}

// DetectKind returns the front-end for a file name, or "" when the file is
// not an analysable input.
func DetectKind(name string) config.Frontend {
	lower := strings.ToLower(name)
	for _, sk := range suffixKinds {
		if strings.HasSuffix(lower, sk.suffix) && len(lower) > len(sk.suffix) {
			return sk.kind
		}
	}
	return ""
}
