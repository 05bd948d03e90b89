package runner

import (
	"embed"
	"strings"

	"github.com/neurofed/axon/pkg/types"
)

//go:embed templates/*.py
var templatesFS embed.FS

// scriptFor returns the script body and extension for a request. A request
// carrying its own script wins; otherwise the embedded template for the
// analysis kind applies. Custom requests must supply a script.
func scriptFor(req *types.AnalysisRequest) (body, ext string, err error) {
	if req.Script != "" {
		ext = "py"
		if req.Kind == types.AnalysisCustom && looksLikeR(req.Script) {
			ext = "r"
		}
		return req.Script, ext, nil
	}

	var name string
	switch req.Kind {
	case types.AnalysisDemographics:
		name = "templates/demographics.py"
	case types.AnalysisCorrelation:
		name = "templates/correlation.py"
	case types.AnalysisDamageScore:
		name = "templates/damage_score.py"
	case types.AnalysisCustom:
		return "", "", types.NewError(types.KindValidation, "custom analysis requires a script")
	default:
		return "", "", types.NewError(types.KindValidation, "unknown analysis kind %q", req.Kind)
	}

	data, err := templatesFS.ReadFile(name)
	if err != nil {
		return "", "", types.WrapError(types.KindInternal, err, "embedded template missing")
	}
	return string(data), "py", nil
}

// looksLikeR distinguishes R from Python for custom scripts without a
// declared language.
func looksLikeR(script string) bool {
	if strings.Contains(script, "#!/") {
		first, _, _ := strings.Cut(script, "\n")
		return strings.Contains(first, "Rscript")
	}
	return strings.Contains(script, "<-") && strings.Contains(script, "library(")
}
