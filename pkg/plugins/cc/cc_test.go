package cc

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCurle/BS/pkg/buildsys"
)

type logLine struct {
	Command bool   `json:"command"`
	Message string `json:"message"`
}

func commandLines(t *testing.T, buffer *bytes.Buffer) []string {
	t.Helper()

	commands := []string{}
	for _, line := range strings.Split(strings.TrimSpace(buffer.String()), "\n") {
		if line == "" {
			continue
		}

		var entry logLine
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry.Command {
			commands = append(commands, entry.Message)
		}
	}
	return commands
}

func newTestPlugin(t *testing.T, dryRun bool) (*Plugin, string, *bytes.Buffer, context.Context) {
	t.Helper()

	t.Setenv("CC", "")
	workDir := filepath.ToSlash(t.TempDir())
	plugin, err := New(context.Background(), buildsys.PluginEnv{
		WorkDir: workDir,
		RootDir: workDir,
		TempDir: buildsys.DefaultTempDir,
		GOOS:    "linux",
		DryRun:  dryRun,
	})
	require.NoError(t, err)

	buffer := new(bytes.Buffer)
	logger := zerolog.New(zerolog.SyncWriter(buffer))
	return plugin.(*Plugin), workDir, buffer, buildsys.WithLogger(context.Background(), &logger)
}

func TestPreprocessInsertsImplicitSteps(t *testing.T) {
	plugin, workDir, _, ctx := newTestPlugin(t, false)

	desc := &buildsys.Description{
		Name:  "hello",
		Steps: []*buildsys.Step{{Name: "compile", Args: []string{"$main"}}},
	}

	require.NoError(t, plugin.Preprocess(ctx, "c", desc))
	assert.Equal(t, []string{"%.o"}, desc.Step("link").Args)
	assert.Equal(t, []string{"$name"}, desc.Step("output").Args)
	assert.DirExists(t, filepath.Join(workDir, buildsys.DefaultTempDir))

	// declared steps are left alone
	desc.SetStep("link", "-lm", "%.o")
	require.NoError(t, plugin.Preprocess(ctx, "h", desc))
	assert.Equal(t, []string{"-lm", "%.o"}, desc.Step("link").Args)
	assert.Len(t, desc.Steps, 3)
}

func TestSetCompiler(t *testing.T) {
	plugin, _, _, ctx := newTestPlugin(t, true)
	assert.Equal(t, "gcc", plugin.Compiler())

	require.NoError(t, plugin.SetCompiler(ctx, "MSVC"))
	assert.Equal(t, "cl", plugin.Compiler())

	require.NoError(t, plugin.SetCompiler(ctx, "/opt/cross/bin/arm-gcc"))
	assert.Equal(t, "/opt/cross/bin/arm-gcc", plugin.Compiler())

	require.Error(t, plugin.SetCompiler(ctx, "  "))
}

func TestDryRunBuild(t *testing.T) {
	plugin, workDir, buffer, ctx := newTestPlugin(t, true)

	desc := &buildsys.Description{Name: "hello"}
	require.NoError(t, plugin.Preprocess(ctx, "c", desc))
	assert.NoDirExists(t, filepath.Join(workDir, buildsys.DefaultTempDir))

	require.NoError(t, plugin.RunStep(ctx, "compile", []string{"-Wall", workDir + "/src/a.c", workDir + "/src/a.h", workDir + "/b.c"}))
	require.NoError(t, plugin.RunStep(ctx, "link", []string{workDir + "/bsTemp/src/a.o", workDir + "/bsTemp/b.o", "-lm"}))
	require.NoError(t, plugin.RunStep(ctx, "output", []string{"hello"}))
	require.NoError(t, plugin.Await(ctx))

	compileA := "gcc -c " + workDir + "/src/a.c -o " + workDir + "/bsTemp/src/a.o -Wall"
	compileB := "gcc -c " + workDir + "/b.c -o " + workDir + "/bsTemp/b.o -Wall"
	link := "gcc " + workDir + "/bsTemp/src/a.o " + workDir + "/bsTemp/b.o -lm -o hello"

	commands := commandLines(t, buffer)
	require.Len(t, commands, 3)
	assert.ElementsMatch(t, []string{compileA, compileB}, commands[:2])
	assert.Equal(t, link, commands[2])

	want := []CompileCommand{
		{
			Directory: workDir,
			Arguments: []string{"gcc", "-c", workDir + "/src/a.c", "-o", workDir + "/bsTemp/src/a.o", "-Wall"},
			File:      workDir + "/src/a.c",
			Output:    workDir + "/bsTemp/src/a.o",
		},
		{
			Directory: workDir,
			Arguments: []string{"gcc", "-c", workDir + "/b.c", "-o", workDir + "/bsTemp/b.o", "-Wall"},
			File:      workDir + "/b.c",
			Output:    workDir + "/bsTemp/b.o",
		},
	}
	if diff := cmp.Diff(want, plugin.CompileCommands()); diff != "" {
		t.Errorf("unexpected compile commands (-want +got):\n%s", diff)
	}

	assert.NoFileExists(t, filepath.Join(workDir, buildsys.DefaultTempDir, "compile_commands.json"))
}

func TestOutputDefaultsToDescriptionName(t *testing.T) {
	plugin, _, buffer, ctx := newTestPlugin(t, true)

	require.NoError(t, plugin.Preprocess(ctx, "c", &buildsys.Description{Name: "kernel"}))
	require.NoError(t, plugin.RunStep(ctx, "output", nil))

	assert.Equal(t, []string{"gcc -o kernel"}, commandLines(t, buffer))
}

func TestCompileRejectsForeignSources(t *testing.T) {
	plugin, workDir, _, ctx := newTestPlugin(t, true)

	outside := filepath.ToSlash(filepath.Join(filepath.Dir(workDir), "elsewhere.c"))
	err := plugin.RunStep(ctx, "compile", []string{outside})

	var unsupported *buildsys.UnsupportedSourceLocationError
	require.ErrorAs(t, err, &unsupported)
}

func TestCompilerProcessLimit(t *testing.T) {
	group := newGroup()
	release := make(chan struct{})
	for i := 0; i < runtime.NumCPU(); i++ {
		group.Go(func() error {
			<-release
			return nil
		})
	}

	assert.False(t, group.TryGo(func() error { return nil }), "more compiler processes than CPUs")

	close(release)
	require.NoError(t, group.Wait())
}

func TestBuildWritesCompileCommands(t *testing.T) {
	if _, err := os.Stat("/bin/true"); err != nil {
		t.Skip("needs /bin/true to stand in for the compiler")
	}

	plugin, workDir, _, ctx := newTestPlugin(t, false)
	require.NoError(t, plugin.SetCompiler(ctx, "/bin/true"))
	require.NoError(t, plugin.Preprocess(ctx, "c", &buildsys.Description{Name: "hello"}))

	require.NoError(t, plugin.RunStep(ctx, "compile", []string{workDir + "/src/main.c"}))
	require.NoError(t, plugin.Await(ctx))

	assert.DirExists(t, filepath.Join(workDir, buildsys.DefaultTempDir, "src"))

	data, err := os.ReadFile(filepath.Join(workDir, buildsys.DefaultTempDir, "compile_commands.json"))
	require.NoError(t, err)

	var commands []CompileCommand
	require.NoError(t, json.Unmarshal(data, &commands))
	require.Len(t, commands, 1)
	assert.Equal(t, workDir+"/src/main.c", commands[0].File)
}

func TestPluginWithRegistry(t *testing.T) {
	workDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "main.c"), []byte("int main() { return 0; }\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "main.h"), []byte{}, 0644))

	registry := buildsys.NewRegistry("")
	Register(registry)

	desc := &buildsys.Description{
		Name:    "hello",
		Target:  "clang",
		Sources: []*buildsys.SourceSet{
			{Name: "main", Specs: []string{"$root/*.c"}},
			{Name: "headers", Specs: []string{"$root/*.h"}},
		},
		Steps: []*buildsys.Step{{Name: "compile", Args: []string{"$main"}}},
	}

	p, err := buildsys.Run(context.Background(), desc, registry, buildsys.Options{
		WorkDir:    workDir,
		GOOS:       "windows",
		AwaitSteps: true,
		DryRun:     true,
	})
	require.NoError(t, err)

	plugin := p.Bindings.Plugin("h").(*Plugin)
	assert.Equal(t, "clang", plugin.Compiler())
	assert.Equal(t, []string{"hello.exe"}, desc.Step("output").Args)
	assert.Equal(t, []string{filepath.ToSlash(workDir) + "/bsTemp/main.o"}, desc.Step("link").Args)
	assert.Len(t, plugin.CompileCommands(), 1)
}
