package progress

import (
	"regexp"
	"sort"
	"strings"
)

// ErrorClass is a normalized Python error
type ErrorClass struct {
	Name      string `json:"name"`      // exception type, e.g. NameError
	Signature string `json:"signature"` // normalized message, stable across runs
	Category  string `json:"category"`
	Message   string `json:"message"` // last traceback line as printed
	Hint      string `json:"hint,omitempty"`
}

// Python error patterns for normalization, most specific first
var pythonErrorPatterns = []struct {
	pattern   *regexp.Regexp
	signature string
	category  string
	hint      string
}{
	{regexp.MustCompile(`^NameError: name '\w+' is not defined`), "NameError: undefined name", "names",
		"Check the spelling of the name and make sure it is defined before you use it."},
	{regexp.MustCompile(`^IndentationError:`), "IndentationError: bad indentation", "syntax",
		"Make sure each block is indented consistently, usually with 4 spaces."},
	{regexp.MustCompile(`^TabError:`), "IndentationError: mixed tabs and spaces", "syntax",
		"Use spaces only for indentation."},
	{regexp.MustCompile(`^SyntaxError: unterminated string`), "SyntaxError: unterminated string", "syntax",
		"Every opening quote needs a matching closing quote."},
	{regexp.MustCompile(`^SyntaxError: (invalid syntax|expected ':')`), "SyntaxError: invalid syntax", "syntax",
		"Look for a missing colon, bracket or quote near the reported line."},
	{regexp.MustCompile(`^SyntaxError:`), "SyntaxError: other", "syntax",
		"Python could not parse the code. Check the line the error points to."},
	{regexp.MustCompile(`^TypeError: can only concatenate str`), "TypeError: str concatenation", "types",
		"Convert numbers with str() before joining them to text, or use an f-string."},
	{regexp.MustCompile(`^TypeError: unsupported operand type`), "TypeError: unsupported operand", "types",
		"The values on each side of the operator have incompatible types."},
	{regexp.MustCompile(`^TypeError: .*(missing \d+ required|takes \d+ positional)`), "TypeError: wrong argument count", "types",
		"Check how many arguments the function expects."},
	{regexp.MustCompile(`^TypeError:`), "TypeError: other", "types",
		"A value has a different type than the operation expects."},
	{regexp.MustCompile(`^ValueError: invalid literal for int\(\)`), "ValueError: invalid int conversion", "values",
		"int() only accepts text that looks like a whole number."},
	{regexp.MustCompile(`^ValueError:`), "ValueError: other", "values", ""},
	{regexp.MustCompile(`^IndexError:`), "IndexError: index out of range", "runtime",
		"Lists start at index 0 and end at len(list) - 1."},
	{regexp.MustCompile(`^KeyError:`), "KeyError: missing key", "runtime",
		"Use dict.get() or check the key exists with `in` first."},
	{regexp.MustCompile(`^AttributeError:`), "AttributeError: missing attribute", "names",
		"Check the method name and the type of the object you call it on."},
	{regexp.MustCompile(`^ZeroDivisionError:`), "ZeroDivisionError: division by zero", "runtime",
		"Check that the divisor is not zero before dividing."},
	{regexp.MustCompile(`^(ModuleNotFoundError|ImportError):`), "ImportError: module not found", "imports",
		"Check the module name. Only the standard library and preinstalled packages are available."},
	{regexp.MustCompile(`^RecursionError:`), "RecursionError: too deep", "runtime",
		"Make sure the recursive function has a base case."},
	{regexp.MustCompile(`^TimeoutError:`), "TimeoutError: execution too long", "runtime",
		"Look for a loop that never ends."},
	{regexp.MustCompile(`^EOFError:`), "EOFError: missing input", "runtime", ""},
}

var exceptionLine = regexp.MustCompile(`^([A-Za-z_][\w.]*(?:Error|Exception|Warning|Interrupt|Exit))(?::\s*(.*))?$`)

// ClassifyError normalizes a Python traceback or error string.
// It returns the zero ErrorClass for empty input.
func ClassifyError(text string) ErrorClass {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrorClass{}
	}

	lines := strings.Split(text, "\n")
	message := strings.TrimSpace(lines[len(lines)-1])
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if exceptionLine.MatchString(line) {
			message = line
			break
		}
	}

	class := ErrorClass{Message: message, Category: "other"}
	if m := exceptionLine.FindStringSubmatch(message); m != nil {
		class.Name = m[1]
		if idx := strings.LastIndex(class.Name, "."); idx >= 0 {
			class.Name = class.Name[idx+1:]
		}
	}

	normalized := message
	if class.Name != "" && !strings.HasPrefix(normalized, class.Name) {
		if idx := strings.Index(normalized, class.Name); idx >= 0 {
			normalized = normalized[idx:]
		}
	}

	for _, p := range pythonErrorPatterns {
		if p.pattern.MatchString(normalized) {
			class.Signature = p.signature
			class.Category = p.category
			class.Hint = p.hint
			return class
		}
	}

	if class.Name != "" {
		class.Signature = class.Name + ": other"
	} else {
		class.Signature = "unknown error"
	}
	return class
}

// ExtractErrorPatterns returns the sorted set of normalized signatures
// found in one or more error outputs
func ExtractErrorPatterns(outputs ...string) []string {
	seen := make(map[string]bool)
	for _, out := range outputs {
		if class := ClassifyError(out); class.Signature != "" {
			seen[class.Signature] = true
		}
	}

	result := make([]string, 0, len(seen))
	for sig := range seen {
		result = append(result, sig)
	}
	sort.Strings(result)
	return result
}
