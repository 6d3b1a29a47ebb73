package buildsys

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	mnemonicPattern      = regexp.MustCompile(`\$([\w-]+)`)
	objectPatternPattern = regexp.MustCompile(`%\.(\w+)`)
)

type tokenKind int

const (
	tokenLiteral tokenKind = iota
	tokenMnemonic
	tokenObjectPattern
)

// token is a classified build step argument
type token struct {
	kind tokenKind
	raw  string
	// name holds the mnemonic name or the object extension
	name string
	// whole is set if the mnemonic makes up the entire (trimmed) token
	whole bool
	// start and end locate the mnemonic inside raw
	start, end int
}

func classifyToken(raw string) token {
	if loc := mnemonicPattern.FindStringSubmatchIndex(raw); loc != nil {
		return token{
			kind:  tokenMnemonic,
			raw:   raw,
			name:  raw[loc[2]:loc[3]],
			whole: strings.TrimSpace(raw) == raw[loc[0]:loc[1]],
			start: loc[0],
			end:   loc[1],
		}
	}

	if match := objectPatternPattern.FindStringSubmatch(raw); match != nil {
		return token{kind: tokenObjectPattern, raw: raw, name: match[1]}
	}

	return token{kind: tokenLiteral, raw: raw}
}

// SubstitutionEnv configures the mnemonic substitution
type SubstitutionEnv struct {
	WorkDir string
	RootDir string
	TempDir string
	// GOOS selects the executable suffix appended to $name
	GOOS string
	// StrictMnemonics turns unknown mnemonics into an error instead of silently dropping the token
	StrictMnemonics bool
}

// Substitution carries the state that builds up while steps are resolved, most importantly the
// sources consumed so far which make up the object tree for %.ext patterns.
type Substitution struct {
	env     SubstitutionEnv
	desc    *Description
	objects []string
}

// NewSubstitution prepares the substitution of desc's build steps
func NewSubstitution(desc *Description, env SubstitutionEnv) *Substitution {
	if env.TempDir == "" {
		env.TempDir = DefaultTempDir
	}

	return &Substitution{env: env, desc: desc}
}

// ObjectSources returns the sources consumed by whole-token source set mnemonics so far
func (s *Substitution) ObjectSources() []string {
	return append([]string{}, s.objects...)
}

func (s *Substitution) builtin(name string) (string, bool) {
	switch name {
	case "name":
		return ExecutableName(s.desc.Name, s.env.GOOS), true
	case "root":
		return normalizeSeparators(s.env.RootDir), true
	case "temp":
		return normalizeSeparators(filepath.Join(s.env.WorkDir, s.env.TempDir)), true
	}

	return "", false
}

// ResolveStep expands all mnemonics and object patterns in step's arguments and returns the result
func (s *Substitution) ResolveStep(ctx context.Context, step *Step) ([]string, error) {
	resolved := make([]string, 0, len(step.Args))

	for _, raw := range step.Args {
		tok := classifyToken(raw)

		switch tok.kind {
		case tokenMnemonic:
			if set := s.desc.SourceSet(tok.name); set != nil {
				if tok.whole {
					resolved = append(resolved, set.Files...)
					s.objects = append(s.objects, set.Files...)
				} else {
					resolved = append(resolved, tok.raw[:tok.start]+strings.Join(set.Files, " ")+tok.raw[tok.end:])
				}
				continue
			}

			if value, ok := s.builtin(tok.name); ok {
				resolved = append(resolved, tok.raw[:tok.start]+value+tok.raw[tok.end:])
				continue
			}

			if s.env.StrictMnemonics {
				return nil, &UnknownMnemonicError{Step: step.Name, Mnemonic: tok.name, Token: raw}
			}

			log(ctx).Warn().
				Str("step", step.Name).
				Msgf("Dropping %q because $%s is neither a source set nor a builtin", raw, tok.name)
		case tokenObjectPattern:
			for _, source := range s.objects {
				object, err := ObjectPath(s.env.WorkDir, s.env.TempDir, source, tok.name)
				if err != nil {
					if locErr, ok := err.(*UnsupportedSourceLocationError); ok {
						locErr.Step = step.Name
					}
					return nil, err
				}

				resolved = append(resolved, object)
			}
		default:
			resolved = append(resolved, raw)
		}
	}

	return resolved, nil
}

// Substitute resolves the arguments of every build step in declaration order and stores the results
// in the description.
func Substitute(ctx context.Context, desc *Description, env SubstitutionEnv) (*Substitution, error) {
	sub := NewSubstitution(desc, env)

	for _, step := range desc.Steps {
		args, err := sub.ResolveStep(ctx, step)
		if err != nil {
			return nil, err
		}

		log(ctx).Debug().
			Str("step", step.Name).
			Strs("args", args).
			Msg("Resolved step")

		step.Args = args
	}

	return sub, nil
}
