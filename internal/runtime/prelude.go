package runtime

import (
	"encoding/json"
	"strconv"
	"strings"
)

const (
	mainFile    = "main.py"
	runnerFile  = "_pyquest_runner.py"
	inputsEnv   = "PYQUEST_INPUTS"
	seedEnv     = "PYQUEST_SEED"
	inputMarker = "\x00PYQUEST_INPUT\x00"
)

// runnerSource replaces builtins.input with a queue reader, then executes
// main.py as __main__. An exhausted queue writes the marker and the prompt
// to stderr and exits cleanly. The random module is seeded from the
// environment so every replay of a session draws the same values.
const runnerSource = `import builtins, json, os, random, sys

random.seed(int(os.environ.get("` + seedEnv + `", "0")))
_queue = json.loads(os.environ.get("` + inputsEnv + `", "[]"))


def _input(prompt=""):
    if not _queue:
        sys.stdout.flush()
        sys.stderr.write("\x00PYQUEST_INPUT\x00" + json.dumps(str(prompt)) + "\n")
        sys.stderr.flush()
        os._exit(0)
    sys.stdout.write(str(prompt))
    return _queue.pop(0)


builtins.input = _input

with open("` + mainFile + `", encoding="utf-8") as _f:
    _source = _f.read()

sys.argv = ["` + mainFile + `"]
exec(compile(_source, "` + mainFile + `", "exec"), {"__name__": "__main__"})
`

// scriptFiles returns the files written into the working directory
func scriptFiles(code string) map[string]string {
	return map[string]string{
		mainFile:   code,
		runnerFile: runnerSource,
	}
}

// scriptEnv returns the environment a backend passes to the runner.
// PYTHONHASHSEED pins set and dict-of-str iteration order across replays.
func scriptEnv(script Script) []string {
	return []string{
		inputsEnv + "=" + encodeInputs(script.Inputs),
		seedEnv + "=" + strconv.FormatInt(script.Seed, 10),
		"PYTHONHASHSEED=" + strconv.FormatUint(uint64(uint32(script.Seed)), 10),
		"PYTHONIOENCODING=utf-8",
	}
}

// encodeInputs serializes queued input for the runner environment
func encodeInputs(inputs []string) string {
	if inputs == nil {
		inputs = []string{}
	}
	data, _ := json.Marshal(inputs)
	return string(data)
}

// parseExecution turns raw process output into a protocol Result
func parseExecution(exec *Execution) *Result {
	result := &Result{Output: exec.Stdout}

	stderr := exec.Stderr
	if idx := strings.Index(stderr, inputMarker); idx >= 0 {
		line := stderr[idx+len(inputMarker):]
		if nl := strings.IndexByte(line, '\n'); nl >= 0 {
			line = line[:nl]
		}
		var prompt string
		if err := json.Unmarshal([]byte(line), &prompt); err != nil {
			prompt = line
		}
		result.WaitingForInput = true
		result.Prompt = prompt
		stderr = stderr[:idx]
	}

	switch {
	case exec.TimedOut:
		result.Error = "TimeoutError: execution took too long and was stopped"
		result.WaitingForInput = false
	case exec.ExitCode != 0:
		result.Error = cleanTraceback(stderr)
		if result.Error == "" {
			result.Error = "process exited with a non-zero status"
		}
	}
	return result
}

// cleanTraceback drops the runner's own frame from Python tracebacks
func cleanTraceback(stderr string) string {
	lines := strings.Split(strings.TrimRight(stderr, "\n"), "\n")
	out := make([]string, 0, len(lines))
	for i := 0; i < len(lines); i++ {
		if strings.Contains(lines[i], runnerFile) {
			// the frame line is followed by its source line
			if i+1 < len(lines) && strings.HasPrefix(lines[i+1], "    ") {
				i++
			}
			continue
		}
		out = append(out, lines[i])
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
