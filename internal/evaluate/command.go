package evaluate

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/shlex"

	"github.com/CZERTAINLY/Evaluator/internal/model"
	"github.com/CZERTAINLY/Evaluator/internal/service"
)

// resolve makes p absolute. Relative paths are relative to the storage root,
// bare names are left for exec.LookPath.
func resolve(root, p string, bare bool) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if bare && !strings.ContainsAny(p, `/\`) {
		return p
	}
	return filepath.Join(root, filepath.FromSlash(p))
}

// buildCommand returns the command running e:
//
//	<interpreter> <script> [input] <output> [extra...]
//
// The working directory is the directory of the script. The environment is
// inherited with the bin directories of the environment prepended to PATH.
func buildCommand(root string, e model.Evaluation, input, output string) service.Command {
	script := resolve(root, e.Script, false)
	args := []string{script}
	if input != "" {
		args = append(args, input)
	}
	args = append(args, output)
	args = append(args, splitExtra(e.ExtraParameter)...)

	return service.Command{
		Path: resolve(root, e.Interpreter, true),
		Args: args,
		Dir:  filepath.Dir(script),
		Env:  environ(resolve(root, e.EnvDir, false)),
	}
}

// splitExtra splits the extra parameter like a shell does. Unbalanced quotes
// pass the whole string as one argument.
func splitExtra(extra string) []string {
	extra = strings.TrimSpace(extra)
	if extra == "" {
		return nil
	}
	args, err := shlex.Split(extra)
	if err != nil {
		return []string{extra}
	}
	return args
}

// environ returns the current environment, with envDir/Library/bin (conda on
// windows) and envDir/bin prepended to PATH.
func environ(envDir string) map[string]string {
	env := make(map[string]string)
	pathKey := "PATH"
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		if runtime.GOOS == "windows" && strings.EqualFold(k, "PATH") {
			pathKey = k
		}
		env[k] = v
	}
	if envDir == "" {
		return env
	}

	dirs := []string{
		filepath.Join(envDir, "Library", "bin"),
		filepath.Join(envDir, "bin"),
	}
	if cur := env[pathKey]; cur != "" {
		dirs = append(dirs, cur)
	}
	env[pathKey] = strings.Join(dirs, string(os.PathListSeparator))
	return env
}
