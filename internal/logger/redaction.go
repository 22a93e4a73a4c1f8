package logger

import (
	"io"
	"regexp"
)

// Mask replaces every redacted value.
const Mask = "[REDACTED]"

// Command arguments and response data are logged as raw JSON, so string
// values under secret-looking keys are masked in addition to well-known
// token formats.
var defaultRules = []redactionRule{
	{
		re:          regexp.MustCompile(`(?i)("[a-z0-9_-]*(?:token|secret|password|passwd|api[_-]?key|authorization|credential)s?"\s*:\s*)"(?:[^"\\]|\\.)*"`),
		replacement: `${1}"` + Mask + `"`,
	},
	{
		re:          regexp.MustCompile(`(?i)\b(password|passwd|secret|token|api[_-]?key)=[^\s&"]+`),
		replacement: `${1}=` + Mask,
	},
	{re: regexp.MustCompile(`Bearer\s+[A-Za-z0-9._~+/-]+=*`), replacement: Mask},
	{re: regexp.MustCompile(`sk-(?:ant-)?[A-Za-z0-9_-]{20,}`), replacement: Mask},
	{re: regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36,}`), replacement: Mask},
	{re: regexp.MustCompile(`AKIA[0-9A-Z]{16}`), replacement: Mask},
}

type redactionRule struct {
	re          *regexp.Regexp
	replacement string
}

// Redactor masks credentials in log output.
type Redactor struct {
	rules []redactionRule
}

// NewRedactor creates a redactor with the default rules.
func NewRedactor() *Redactor {
	rules := make([]redactionRule, len(defaultRules))
	copy(rules, defaultRules)
	return &Redactor{rules: rules}
}

// AddPattern masks every match of pattern.
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.rules = append(r.rules, redactionRule{re: re, replacement: Mask})
	return nil
}

// Redact returns s with every credential masked.
func (r *Redactor) Redact(s string) string {
	for _, rule := range r.rules {
		s = rule.re.ReplaceAllString(s, rule.replacement)
	}
	return s
}

// Wrap returns a writer that redacts each write before passing it to w.
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{next: w, redactor: r}
}

type redactingWriter struct {
	next     io.Writer
	redactor *Redactor
}

// Write reports len(p) on success: the redacted line may differ in length.
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := io.WriteString(w.next, w.redactor.Redact(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}
