// Package cleanup provides ascii reporter
package cleanup

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/caching/interfaces"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/caching/types"
)

const (
	cyan        = "\033[38;2;86;182;194m"  // One Dark Cyan: #56B6C2
	cyanBright  = "\033[38;2;97;228;240m"  // Brighter Cyan: #61E4F0
	dimCyan     = "\033[38;2;47;91;102m"   // Dim Cyan: #2F5B66
	grey        = "\033[38;2;110;118;129m" // Brighter Grey: #6E7681
	dimGrey     = "\033[38;2;75;82;99m"    // Darker Grey: #4B5263
	success     = "\033[38;2;62;130;144m"  // Dim Cyan: #3E8290
	errorRed    = "\033[38;2;224;108;117m" // One Dark Red: #E06C75
	white       = "\033[38;2;171;178;191m" // One Dark Foreground: #ABB2BF
	whiteBright = "\033[38;2;220;225;230m" // Brighter White
	purple      = "\033[38;2;198;120;221m" // One Dark Purple: #C678DD
	dimPurple   = "\033[38;2;142;87;158m"  // Dim Purple: #8E579E
	warning     = "\033[38;2;229;192;123m" // One Dark Yellow: #E5C07B
	reset       = "\033[0m"
	bold        = "\033[1m"
)

// Reporter renders a per-tenant cache summary for verbose cleanup runs.
type Reporter struct {
	cache interfaces.Cache
	out   io.Writer
}

// NewReporter writes to out, or to stdout when out is nil.
func NewReporter(cache interfaces.Cache, out io.Writer) *Reporter {
	if out == nil {
		out = os.Stdout
	}
	return &Reporter{cache: cache, out: out}
}

func (r *Reporter) LogHeader(title string) {
	fmt.Fprintf(r.out, "%s%s✓ %s %s\n", bold, cyan, strings.ToUpper(title), reset)
}

func (r *Reporter) LogSubHeader(text string) {
	fmt.Fprintf(r.out, "%s%s░▒▓ %s %s\n", bold, dimCyan, text, reset)
}

func (r *Reporter) LogStage(message string, args ...any) {
	fmt.Fprintf(r.out, "%s%s✦ %s%s%s\n", success, bold, grey, fmt.Sprintf(message, args...), reset)
}

func (r *Reporter) LogSuccess(message string, args ...any) {
	fmt.Fprintf(r.out, "%s%s✦ %s%s%s\n", success, bold, white, fmt.Sprintf(message, args...), reset)
}

func (r *Reporter) LogError(message string, err error) {
	fmt.Fprintf(r.out, "%s%s✖ ERROR: %s%s: %v%s\n", bold, errorRed, grey, message, err, reset)
}

func (r *Reporter) LogWarning(message string, args ...any) {
	fmt.Fprintf(r.out, "%s%s⚠ WARNING: %s%s%s\n", bold, warning, grey, fmt.Sprintf(message, args...), reset)
}

func (r *Reporter) GenerateTenantReport(tenantID string) string {
	var report strings.Builder
	timestamp := time.Now().UTC().Format("2006-01-02 15:04:05 MST")

	report.WriteString(fmt.Sprintf("%s%s▓ %s | Tenant: %s%s %s\n", bold, dimCyan, timestamp, whiteBright, tenantID, reset))

	var partsLine strings.Builder
	partsLine.WriteString(fmt.Sprintf("%s✦ active set:%s", cyanBright, reset))
	for _, key := range types.ActiveSetKeys {
		label := strings.TrimPrefix(key, "split_tests:")
		partsLine.WriteString(" ")
		if _, found, err := r.cache.GetActiveSetPart(tenantID, key); err == nil && found {
			partsLine.WriteString(fmt.Sprintf("%s%s:%sREADY", dimCyan, label, cyan))
		} else if err != nil {
			partsLine.WriteString(fmt.Sprintf("%s%s:%sERR", dimGrey, label, errorRed))
		} else {
			partsLine.WriteString(fmt.Sprintf("%s%s:%s--", dimGrey, label, dimGrey))
		}
	}
	report.WriteString(partsLine.String() + reset + "\n")

	sessions := r.cache.SessionCount(tenantID)
	if sessions > 0 {
		report.WriteString(fmt.Sprintf("%s✦ activity:%s %ssessions:%s%d%s\n", purple, reset, dimPurple, white, sessions, reset))
	} else {
		report.WriteString(fmt.Sprintf("%s✦ activity:%s %ssessions:%s--%s\n", purple, reset, dimGrey, dimGrey, reset))
	}

	return report.String()
}
