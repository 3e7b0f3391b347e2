package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	invites "github.com/goliatone/go-invites"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	defaultSourceLabel = "go-invites"
	migrationsDir      = "data/sql/migrations"
)

// FilesystemSpec is one dialect's migration tree. Versions holds the
// numeric prefixes of its up files in order.
type FilesystemSpec struct {
	Dialect  string
	Path     string
	FS       fs.FS
	Versions []string
}

type Registration struct {
	SourceLabel       string
	ValidationTargets []string
	Filesystems       []FilesystemSpec
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*registerOptions)

type registerOptions struct {
	sourceLabel string
	targets     []string
	root        fs.FS
}

func WithSourceLabel(label string) Option {
	return func(o *registerOptions) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			o.sourceLabel = trimmed
		}
	}
}

// WithValidationTargets limits registration to the named dialects.
func WithValidationTargets(targets ...string) Option {
	return func(o *registerOptions) {
		if next := dedupe(targets); len(next) > 0 {
			o.targets = next
		}
	}
}

// WithRoot swaps the embedded tree for another one with the same layout.
func WithRoot(root fs.FS) Option {
	return func(o *registerOptions) {
		if root != nil {
			o.root = root
		}
	}
}

// Filesystems resolves the postgres and sqlite trees. Every up file needs a
// down file, and both dialects must carry the same versions.
func Filesystems(sources ...fs.FS) ([]FilesystemSpec, error) {
	root := invites.GetMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		root = sources[0]
	}

	base, err := fs.Sub(root, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", migrationsDir, err)
	}
	sqliteFS, err := fs.Sub(base, DialectSQLite)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	filesystems := []FilesystemSpec{
		{Dialect: DialectPostgres, Path: migrationsDir, FS: base},
		{Dialect: DialectSQLite, Path: migrationsDir + "/" + DialectSQLite, FS: sqliteFS},
	}
	for i := range filesystems {
		versions, verr := versionsOf(filesystems[i])
		if verr != nil {
			return nil, verr
		}
		filesystems[i].Versions = versions
	}
	if !slices.Equal(filesystems[0].Versions, filesystems[1].Versions) {
		return nil, fmt.Errorf(
			"migrations: postgres versions %v do not match sqlite versions %v",
			filesystems[0].Versions, filesystems[1].Versions,
		)
	}
	return filesystems, nil
}

// Register hands each targeted dialect tree to registerFn.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	options := registerOptions{
		sourceLabel: defaultSourceLabel,
		targets:     []string{DialectPostgres, DialectSQLite},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	reg := Registration{SourceLabel: options.sourceLabel, ValidationTargets: options.targets}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}
	for _, target := range options.targets {
		if target != DialectPostgres && target != DialectSQLite {
			return reg, fmt.Errorf("migrations: unsupported dialect %q", target)
		}
	}

	filesystems, err := Filesystems(options.root)
	if err != nil {
		return reg, err
	}
	reg.Filesystems = filesystems

	for _, fsys := range filesystems {
		if !slices.Contains(options.targets, fsys.Dialect) {
			continue
		}
		if err := registerFn(ctx, fsys.Dialect, reg.SourceLabel, fsys.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", fsys.Dialect, fsys.Path, err)
		}
	}
	return reg, nil
}

func versionsOf(spec FilesystemSpec) ([]string, error) {
	ups, err := fs.Glob(spec.FS, "*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: glob %s: %w", spec.Path, err)
	}
	if len(ups) == 0 {
		return nil, fmt.Errorf("migrations: %s filesystem %q has no *.up.sql files", spec.Dialect, spec.Path)
	}
	versions := make([]string, 0, len(ups))
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := fs.Stat(spec.FS, down); err != nil {
			return nil, fmt.Errorf("migrations: %s/%s has no matching %s", spec.Path, up, down)
		}
		version, _, ok := strings.Cut(up, "_")
		if !ok || version == "" {
			return nil, fmt.Errorf("migrations: %s/%s is missing a version prefix", spec.Path, up)
		}
		versions = append(versions, version)
	}
	slices.Sort(versions)
	return versions, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(strings.ToLower(value))
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
