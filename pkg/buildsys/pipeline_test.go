package buildsys

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func helloDescription() *Description {
	return &Description{
		Name:    "hello",
		Sources: []*SourceSet{{Name: "main", Specs: []string{"$root/*.c"}}},
		Steps: []*Step{
			{Name: "compile", Args: []string{"$main"}},
			{Name: "link", Args: []string{"%.o"}},
			{Name: "output", Args: []string{"$name"}},
		},
	}
}

func cRegistry(j *journal) *Registry {
	registry := NewRegistry("")
	registry.Register("c", staticFactory(&fakePlugin{
		key:     "c",
		exts:    []string{"c", "h"},
		steps:   []string{"compile", "link", "output"},
		journal: j,
	}))
	return registry
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	for _, goos := range []string{"linux", "windows"} {
		t.Run("resolves and runs the hello world build on "+goos, func(t *testing.T) {
			workDir := t.TempDir()
			writeFiles(t, workDir, "a.c", "b.c")
			j := new(journal)
			desc := helloDescription()

			p, err := Run(ctx, desc, cRegistry(j), Options{WorkDir: workDir, GOOS: goos, AwaitSteps: true})
			require.NoError(t, err)

			slashedDir := filepath.ToSlash(workDir)
			output := "hello"
			if goos == "windows" {
				output = "hello.exe"
			}

			want := map[string][]string{
				"compile": slashed(workDir, "a.c", "b.c"),
				"link":    {slashedDir + "/bsTemp/a.o", slashedDir + "/bsTemp/b.o"},
				"output":  {output},
			}
			got := map[string][]string{}
			for _, step := range desc.Steps {
				got[step.Name] = step.Args
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("unexpected resolved steps (-want +got):\n%s", diff)
			}

			assert.Equal(t, []string{"c"}, p.Extensions.List())
			assert.Equal(t, []string{
				"c:preprocess:c",
				"c:compile:" + slashedDir + "/a.c," + slashedDir + "/b.c",
				"c:link:" + slashedDir + "/bsTemp/a.o," + slashedDir + "/bsTemp/b.o",
				"c:output:" + output,
			}, j.list())
		})
	}

	t.Run("missing source aborts before binding", func(t *testing.T) {
		workDir := t.TempDir()
		writeFiles(t, workDir, "a.c")
		missing := filepath.Join(workDir, "does", "not", "exist.c")

		j := new(journal)
		desc := helloDescription()
		desc.Sources = append(desc.Sources, &SourceSet{Name: "extra", Specs: []string{missing}})

		p, err := Run(ctx, desc, cRegistry(j), Options{WorkDir: workDir})

		var notFound *PathNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "extra", notFound.SourceSet)
		assert.Equal(t, filepath.ToSlash(missing), notFound.Path)

		assert.Nil(t, p.Bindings)
		assert.Empty(t, j.list())
		assert.NoDirExists(t, filepath.Join(workDir, DefaultTempDir))
	})

	t.Run("unknown extension aborts before substitution", func(t *testing.T) {
		workDir := t.TempDir()
		writeFiles(t, workDir, "a.c", "lib.rs")

		j := new(journal)
		desc := helloDescription()
		desc.Sources = append(desc.Sources, &SourceSet{Name: "rust", Specs: []string{"$root/*.rs"}})

		p, err := Run(ctx, desc, cRegistry(j), Options{WorkDir: workDir})

		var notFound *PluginNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "rs", notFound.Extension)

		assert.Nil(t, p.Substitution)
		assert.Equal(t, []string{"$main"}, desc.Step("compile").Args)
	})

	t.Run("resolve only", func(t *testing.T) {
		workDir := t.TempDir()
		writeFiles(t, workDir, "a.c")

		j := new(journal)
		desc := helloDescription()
		p, err := Run(ctx, desc, cRegistry(j), Options{WorkDir: workDir, ResolveOnly: true})
		require.NoError(t, err)

		assert.NotNil(t, p.Substitution)
		assert.Equal(t, []string{"c:preprocess:c"}, j.list())
		assert.Equal(t, slashed(workDir, "a.c"), desc.Step("compile").Args)
	})

	t.Run("separate root directory", func(t *testing.T) {
		workDir := t.TempDir()
		writeFiles(t, workDir, "src/a.c")

		desc := helloDescription()
		_, err := Run(ctx, desc, cRegistry(new(journal)), Options{
			WorkDir:     workDir,
			RootDir:     filepath.Join(workDir, "src"),
			TempDir:     "out",
			ResolveOnly: true,
		})
		require.NoError(t, err)

		slashedDir := filepath.ToSlash(workDir)
		assert.Equal(t, []string{slashedDir + "/out/src/a.o"}, desc.Step("link").Args)
	})
}

func TestPipelineStages(t *testing.T) {
	ctx := context.Background()
	workDir := t.TempDir()
	writeFiles(t, workDir, "a.c")

	p, err := NewPipeline(helloDescription(), Options{WorkDir: workDir})
	require.NoError(t, err)
	assert.Equal(t, DefaultTempDir, p.Options.TempDir)
	assert.Equal(t, p.Options.WorkDir, p.Options.RootDir)

	registry := cRegistry(new(journal))
	require.Error(t, p.Bind(ctx, registry))
	require.Error(t, p.Substitute(ctx))
	require.Error(t, p.Execute(ctx))

	require.NoError(t, p.ExpandSources(ctx))
	require.NoError(t, p.Bind(ctx, registry))
	require.NoError(t, p.Substitute(ctx))
	require.NoError(t, p.Execute(ctx))

	assert.Equal(t, filepath.ToSlash(filepath.Join(workDir, DefaultTempDir)), p.PluginEnv().TempPath())
}

func TestWriteDescription(t *testing.T) {
	desc := helloDescription()
	desc.Target = "clang"
	desc.Steps[1].Args = []string{"/w/bsTemp/a.o"}

	buffer := bytes.Buffer{}
	require.NoError(t, WriteDescription(&buffer, desc))

	assert.Contains(t, buffer.String(), "name: hello\ntarget: clang\nsource:\n")
	assert.Contains(t, buffer.String(), "  link: [/w/bsTemp/a.o]\n")

	// the dump can be read back
	parsed, err := ParseYAMLDescription(buffer.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "clang", parsed.Target)
	assert.Equal(t, []string{"compile", "link", "output"}, []string{parsed.Steps[0].Name, parsed.Steps[1].Name, parsed.Steps[2].Name})
	assert.Equal(t, []string{"/w/bsTemp/a.o"}, parsed.Step("link").Args)
	assert.Equal(t, []string{"$root/*.c"}, parsed.SourceSet("main").Specs)
}

func TestLoadDescriptionFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "build.yml")
	require.NoError(t, os.WriteFile(path, []byte("name: disk\nbuild:\n  output: $name\n"), 0644))

	desc, err := LoadDescription(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "disk", desc.Name)
	assert.Equal(t, []string{"$name"}, desc.Step("output").Args)

	_, err = LoadDescription(context.Background(), filepath.Join(dir, "build.json"))
	require.Error(t, err)
}
