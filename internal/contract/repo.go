package contract

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/huangsam/locstat/schema"
)

// ErrLocalSource is returned when a local path is used without allow-local-sources.
var ErrLocalSource = errors.New("local sources are disabled")

// scpLikeRegex matches "user@host:owner/name.git" remotes.
var scpLikeRegex = regexp.MustCompile(`^[A-Za-z0-9._-]+@[A-Za-z0-9.-]+:([^/].*)$`)

// remoteSchemes are the URL schemes accepted as remote sources.
var remoteSchemes = map[string]struct{}{
	"http":  {},
	"https": {},
	"ssh":   {},
	"git":   {},
}

// ParseRepoURL derives the repository identity from the last two path segments of a
// remote URL, an scp-like remote, or a local path.
func ParseRepoURL(raw string) (schema.Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return schema.Identity{}, fmt.Errorf("repository URL must not be empty")
	}

	var p string
	switch {
	case scpLikeRegex.MatchString(raw):
		p = scpLikeRegex.FindStringSubmatch(raw)[1]
	case strings.Contains(raw, "://"):
		u, err := url.Parse(raw)
		if err != nil {
			return schema.Identity{}, fmt.Errorf("invalid repository URL %q: %w", raw, err)
		}
		p = u.Path
	default:
		p = filepath.ToSlash(raw)
	}

	p = strings.TrimSuffix(strings.Trim(p, "/"), ".git")
	segments := strings.Split(path.Clean("/"+p), "/")
	if len(segments) < 3 {
		return schema.Identity{}, fmt.Errorf("cannot infer owner and repo from %q. Provide them explicitly", raw)
	}
	id := schema.NewIdentity(segments[len(segments)-2], segments[len(segments)-1])
	if err := id.Validate(); err != nil {
		return schema.Identity{}, fmt.Errorf("cannot infer identity from %q: %w", raw, err)
	}
	return id, nil
}

// IsLocalSource reports whether source refers to the local filesystem.
func IsLocalSource(source string) bool {
	if strings.HasPrefix(source, "file://") {
		return true
	}
	return !strings.Contains(source, "://") && !scpLikeRegex.MatchString(source)
}

// ValidateSource checks that source is safe to hand to a fetcher.
func ValidateSource(source string, allowLocal bool) error {
	source = strings.TrimSpace(source)
	switch {
	case source == "":
		return fmt.Errorf("repository source must not be empty")
	case strings.HasPrefix(source, "-"):
		return fmt.Errorf("repository source %q must not start with '-'", source)
	case strings.ContainsAny(source, "\x00\n\r"):
		return fmt.Errorf("repository source contains control characters")
	}

	if IsLocalSource(source) {
		if !allowLocal {
			return fmt.Errorf("%w: %q. Set --allow-local-sources to analyze local paths", ErrLocalSource, source)
		}
		p := strings.TrimPrefix(source, "file://")
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("local source %q is not accessible: %w", source, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("local source %q is not a directory", source)
		}
		return nil
	}

	if scpLikeRegex.MatchString(source) {
		return nil
	}
	u, err := url.Parse(source)
	if err != nil {
		return fmt.Errorf("invalid repository URL %q: %w", source, err)
	}
	if _, ok := remoteSchemes[strings.ToLower(u.Scheme)]; !ok {
		return fmt.Errorf("unsupported repository URL scheme %q. Use https, ssh, or git", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("repository URL %q has no host", source)
	}
	return nil
}

// ResolveRequest turns adapter input into an identity and a validated source.
// Owner and name are inferred from repoURL when either is empty.
func ResolveRequest(owner, name, repoURL string, allowLocal bool) (schema.Identity, string, error) {
	source := strings.TrimSpace(repoURL)
	if err := ValidateSource(source, allowLocal); err != nil {
		return schema.Identity{}, "", err
	}

	id := schema.NewIdentity(owner, name)
	if id.Owner == "" || id.Name == "" {
		inferred, err := ParseRepoURL(source)
		if err != nil {
			return schema.Identity{}, "", err
		}
		id = inferred
	}
	if err := id.Validate(); err != nil {
		return schema.Identity{}, "", fmt.Errorf("invalid repository identity: %w", err)
	}
	return id, source, nil
}

// DefaultShorthandHost is the forge used for owner/name shorthands.
const DefaultShorthandHost = "github.com"

// ExpandShorthand turns "owner/name" into an https URL on DefaultShorthandHost.
// Anything that is already a URL, an scp-like remote, or an existing path is returned unchanged.
func ExpandShorthand(target string) string {
	target = strings.TrimSpace(target)
	if !IsLocalSource(target) || strings.HasPrefix(target, "file://") {
		return target
	}
	if _, err := os.Stat(target); err == nil {
		return target
	}
	id, err := schema.ParseIdentity(target)
	if err != nil {
		return target
	}
	return fmt.Sprintf("https://%s/%s/%s.git", DefaultShorthandHost, id.Owner, id.Name)
}

// LocalIdentity names a local directory. A git checkout is named after its
// origin remote; otherwise the last two path segments are used, falling back
// to "local/<base>" near the filesystem root.
func LocalIdentity(dir string) schema.Identity {
	if id, ok := originIdentity(dir); ok {
		return id
	}
	if id, err := ParseRepoURL(dir); err == nil {
		return id
	}
	base := filepath.Base(filepath.Clean(dir))
	if base == string(filepath.Separator) || base == "." || base == "" {
		base = "root"
	}
	return schema.NewIdentity("local", base)
}

// originIdentity parses the first URL of the origin remote of the repository at dir.
func originIdentity(dir string) (schema.Identity, bool) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return schema.Identity{}, false
	}
	remote, err := repo.Remote(git.DefaultRemoteName)
	if err != nil {
		return schema.Identity{}, false
	}
	for _, u := range remote.Config().URLs {
		if id, err := ParseRepoURL(u); err == nil {
			return id, true
		}
	}
	return schema.Identity{}, false
}
