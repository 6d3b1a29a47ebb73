package buildsys

import "fmt"

// PathNotFoundError is returned when a literal source path does not exist
type PathNotFoundError struct {
	SourceSet string
	Spec      string
	Path      string
}

var _ error = (*PathNotFoundError)(nil)

func (e *PathNotFoundError) Error() string {
	if e.SourceSet == "" {
		return fmt.Sprintf("file or folder %s does not exist", e.Path)
	}
	return fmt.Sprintf("file or folder %s (from %s) in source set %s does not exist", e.Path, e.Spec, e.SourceSet)
}

// DirectoryUnreadableError is returned when the folder of a wildcard source can't be listed
type DirectoryUnreadableError struct {
	SourceSet string
	Dir       string
	Err       error
}

var _ error = (*DirectoryUnreadableError)(nil)

func (e *DirectoryUnreadableError) Error() string {
	return fmt.Sprintf("failed to list directory %s in source set %s: %v", e.Dir, e.SourceSet, e.Err)
}

func (e *DirectoryUnreadableError) Unwrap() error {
	return e.Err
}

// PluginNotFoundError is returned when no plugin handles one of the source extensions
type PluginNotFoundError struct {
	Extension string
}

var _ error = (*PluginNotFoundError)(nil)

func (e *PluginNotFoundError) Error() string {
	return fmt.Sprintf("no plugin found for extension %s (looked for a plugin named %s and for %s in all plugins)",
		e.Extension, e.Extension, ExtensionHookName(e.Extension))
}

// UnsupportedSourceLocationError is returned when an object pattern has to re-root a source that lies
// outside of the working directory.
type UnsupportedSourceLocationError struct {
	Step    string
	Source  string
	WorkDir string
}

var _ error = (*UnsupportedSourceLocationError)(nil)

func (e *UnsupportedSourceLocationError) Error() string {
	return fmt.Sprintf("step %s: can't place the object file for %s because it is outside of the working directory %s",
		e.Step, e.Source, e.WorkDir)
}

// UnknownMnemonicError is only returned in strict mode; by default unknown mnemonics are dropped.
type UnknownMnemonicError struct {
	Step     string
	Mnemonic string
	Token    string
}

var _ error = (*UnknownMnemonicError)(nil)

func (e *UnknownMnemonicError) Error() string {
	return fmt.Sprintf("step %s: unknown mnemonic $%s in %q", e.Step, e.Mnemonic, e.Token)
}
