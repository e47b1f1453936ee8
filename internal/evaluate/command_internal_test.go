package evaluate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CZERTAINLY/Evaluator/internal/model"

	"github.com/stretchr/testify/require"
)

func TestSplitExtra(t *testing.T) {
	t.Parallel()
	var tests = []struct {
		name     string
		extra    string
		expected []string
	}{
		{"empty", "   ", nil},
		{"simple", "--epochs 3", []string{"--epochs", "3"}},
		{"quoted", `--name "a b" --x='c d'`, []string{"--name", "a b", "--x=c d"}},
		{"unbalanced", `--name "a b`, []string{`--name "a b`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.expected, splitExtra(tt.extra))
		})
	}
}

func TestEnviron(t *testing.T) {
	t.Setenv("PATH", "/usr/bin")
	env := environ("/envs/torch")
	sep := string(os.PathListSeparator)
	require.Equal(t, strings.Join([]string{
		filepath.Join("/envs/torch", "Library", "bin"),
		filepath.Join("/envs/torch", "bin"),
		"/usr/bin",
	}, sep), env["PATH"])

	env = environ("")
	require.Equal(t, "/usr/bin", env["PATH"])
}

func TestBuildCommand(t *testing.T) {
	t.Parallel()
	root := filepath.FromSlash("/srv/storage")
	e := model.Evaluation{
		Interpreter:    "python3",
		Script:         "models/m1/main.py",
		EnvDir:         "envs/m1",
		ExtraParameter: "--fast",
	}
	cmd := buildCommand(root, e, "", "/out")
	require.Equal(t, "python3", cmd.Path)
	script := filepath.Join(root, "models", "m1", "main.py")
	require.Equal(t, []string{script, "/out", "--fast"}, cmd.Args)
	require.Equal(t, filepath.Dir(script), cmd.Dir)
	require.True(t, strings.HasPrefix(cmd.Env["PATH"], filepath.Join(root, "envs", "m1", "Library", "bin")))

	e.Interpreter = "envs/m1/python.exe"
	cmd = buildCommand(root, e, "/in", "/out")
	require.Equal(t, filepath.Join(root, "envs", "m1", "python.exe"), cmd.Path)
	require.Equal(t, []string{script, "/in", "/out", "--fast"}, cmd.Args)
}
