package lookup

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

// Location kinds as written in hierarchy entries.
const (
	LocationPath  = "path"
	LocationPaths = "paths"
	LocationGlob  = "glob"
	LocationGlobs = "globs"
	LocationURI   = "uri"
	LocationURIs  = "uris"
)

// LocationSpec is the raw location declaration of a hierarchy entry.
type LocationSpec struct {
	Kind   string
	Values []string
}

// IsURI reports whether the declaration names URIs rather than files.
func (s *LocationSpec) IsURI() bool {
	return s.Kind == LocationURI || s.Kind == LocationURIs
}

// Location is one resolved location of a hierarchy entry.
type Location struct {
	// Original is the declaration the location was produced from.
	Original string

	// Resolved is the absolute path or the interpolated URI.
	Resolved string

	// Exists is probed once when the provider is built. URIs always exist.
	Exists bool

	// URI marks Resolved as a URI.
	URI bool
}

// OptionKey returns the option name the location is passed to functions as.
func (l Location) OptionKey() string {
	if l.URI {
		return "uri"
	}
	return "path"
}

func (l Location) label() string {
	if l.URI {
		return fmt.Sprintf("URI \"%s\"", l.Resolved)
	}
	return fmt.Sprintf("Path \"%s\"", l.Resolved)
}

func (l Location) cacheKey() string {
	return l.OptionKey() + ":" + l.Resolved
}

// resolveLocations interpolates the declarations of spec with variable-only
// interpolation, joins paths against datadir and expands globs. The result
// keeps declaration order; matches of one glob are sorted.
func resolveLocations(inv *Invocation, fsys afero.Fs, spec *LocationSpec, datadir string) ([]Location, error) {
	var out []Location
	for _, decl := range spec.Values {
		iv, err := inv.Interpolate(decl, false)
		if err != nil {
			return nil, err
		}
		resolved, _ := iv.(string)

		switch spec.Kind {
		case LocationURI, LocationURIs:
			out = append(out, Location{Original: decl, Resolved: resolved, Exists: true, URI: true})
		case LocationGlob, LocationGlobs:
			matches, err := expandGlob(fsys, joinDataDir(datadir, resolved))
			if err != nil {
				return nil, NewConfigurationError(fmt.Sprintf("Invalid glob pattern '%s'", decl), err)
			}
			for _, m := range matches {
				out = append(out, Location{Original: decl, Resolved: m, Exists: true})
			}
		default:
			p := joinDataDir(datadir, resolved)
			out = append(out, Location{Original: decl, Resolved: p, Exists: fileExists(fsys, p)})
		}
	}
	return out, nil
}

func joinDataDir(datadir, p string) string {
	if filepath.IsAbs(p) || datadir == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(datadir, p)
}

func fileExists(fsys afero.Fs, p string) bool {
	fi, err := fsys.Stat(p)
	return err == nil && !fi.IsDir()
}

// expandGlob matches pattern against fsys. Directories are skipped.
func expandGlob(fsys afero.Fs, pattern string) ([]string, error) {
	pattern = filepath.ToSlash(pattern)
	rooted := strings.HasPrefix(pattern, "/")
	iofs := afero.NewIOFS(fsys)
	if rooted {
		iofs = afero.NewIOFS(afero.NewBasePathFs(fsys, "/"))
	}

	matches, err := doublestar.Glob(iofs, strings.TrimPrefix(pattern, "/"), doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	out := make([]string, len(matches))
	for i, m := range matches {
		if rooted {
			m = "/" + m
		}
		out[i] = filepath.FromSlash(m)
	}
	return out, nil
}
