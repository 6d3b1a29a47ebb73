package buildsys

import (
	"context"
	"os"
	"strings"
)

// splitWildcard detects a trailing "*.<ext>" segment. The wildcard only counts if it directly follows
// the last separator; a "*" anywhere else is part of a literal path.
func splitWildcard(spec string) (dir, ext string, ok bool) {
	slash := strings.LastIndex(spec, "/")
	if slash < 0 {
		return "", "", false
	}

	segment := spec[slash+1:]
	if !strings.HasPrefix(segment, "*.") {
		return "", "", false
	}

	ext = segment[2:]
	if ext == "" || strings.Contains(ext, "*") {
		return "", "", false
	}

	return spec[:slash+1], ext, true
}

// ResolvePath turns a single path specification into concrete paths. $root is replaced with rootDir,
// separators are normalized to "/" and a trailing *.<ext> is expanded by listing the directory.
// Every extension encountered is recorded in exts.
func ResolvePath(spec, rootDir string, exts *ExtensionSet) ([]string, error) {
	resolved := normalizeSeparators(strings.ReplaceAll(spec, RootPlaceholder, normalizeSeparators(rootDir)))

	if dir, ext, ok := splitWildcard(resolved); ok {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, &DirectoryUnreadableError{Dir: dir, Err: err}
		}

		suffix := "." + ext
		result := make([]string, 0, len(entries))
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
				continue
			}

			result = append(result, dir+entry.Name())
		}

		exts.Add(ext)
		if len(result) == 0 {
			return nil, &PathNotFoundError{Spec: spec, Path: resolved}
		}
		return result, nil
	}

	_, err := os.Stat(resolved)
	if err != nil {
		return nil, &PathNotFoundError{Spec: spec, Path: resolved}
	}

	exts.Add(pathExtension(resolved))
	return []string{resolved}, nil
}

// ExpandSources resolves every path specification of every source set in declaration order and stores the
// results in SourceSet.Files. It stops at the first specification that can't be resolved.
func ExpandSources(ctx context.Context, desc *Description, rootDir string) (*ExtensionSet, error) {
	exts := new(ExtensionSet)

	for _, set := range desc.Sources {
		expanded := make([]string, 0, len(set.Specs))
		for _, spec := range set.Specs {
			log(ctx).Debug().
				Str("set", set.Name).
				Str("spec", spec).
				Msg("Parsing file tree")

			files, err := ResolvePath(spec, rootDir, exts)
			if err != nil {
				switch typed := err.(type) {
				case *PathNotFoundError:
					typed.SourceSet = set.Name
				case *DirectoryUnreadableError:
					typed.SourceSet = set.Name
				}
				return nil, err
			}

			expanded = append(expanded, files...)
		}

		set.Files = expanded
		log(ctx).Info().
			Str("set", set.Name).
			Int("files", len(expanded)).
			Msgf("Resolved source set %s", set.Name)
	}

	return exts, nil
}
