// Package buildsys implements a minimal, plugin based build orchestrator.
// A build description declares named source sets and an ordered list of build steps. Sources are expanded
// into concrete files, plugins are bound by file extension, $mnemonics and %.ext object patterns in the
// step arguments are resolved and finally every step is handed to the plugins that implement it.
package buildsys
