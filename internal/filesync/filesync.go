package filesync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/distantorigin/noobcraft-installer/internal/paths"
)

// ErrResourceNotFound is returned by a Source when it has no payload for a name.
var ErrResourceNotFound = errors.New("resource not found")

// DefaultChunkSize is the buffer size used when comparing file contents.
const DefaultChunkSize = 32 * 1024

// Source provides the payload for a desired file.
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// Target is a directory to reconcile.
type Target struct {
	Dir string
	// Recursive walks subdirectories. Mods are flat, configs are not.
	Recursive bool
	// Prune deletes files that are not desired.
	Prune bool
}

// Reason explains why a file is (re)written.
type Reason string

const (
	Missing Reason = "missing"
	Changed Reason = "changed"
)

// Install is a planned write.
type Install struct {
	Name   string // desired name as listed, relative to the target
	Path   string // absolute destination path
	Reason Reason
}

// Plan is the set of operations that bring a target in line with a desired set.
type Plan struct {
	Delete  []string // absolute paths
	Install []Install
	Current []string // desired names already identical on disk
	Failed  []Failure
}

// Empty reports whether applying the plan would change nothing.
func (p *Plan) Empty() bool {
	return len(p.Delete) == 0 && len(p.Install) == 0 && len(p.Failed) == 0
}

// Op names the operation that failed.
type Op string

const (
	OpCompare Op = "compare"
	OpDelete  Op = "delete"
	OpWrite   Op = "write"
	OpSource  Op = "source"
)

// Failure is a per-item error.
type Failure struct {
	Path string
	Op   Op
	Err  error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s %s: %v", f.Op, f.Path, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Result summarises a reconcile.
type Result struct {
	Installed []string
	Skipped   []string
	Deleted   []string
	Failed    []Failure
}

// OK reports whether every item succeeded.
func (r Result) OK() bool {
	return len(r.Failed) == 0
}

// Err joins every failure, or returns nil.
func (r Result) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failed))
	for i, f := range r.Failed {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Merge appends o into r.
func (r *Result) Merge(o Result) {
	r.Installed = append(r.Installed, o.Installed...)
	r.Skipped = append(r.Skipped, o.Skipped...)
	r.Deleted = append(r.Deleted, o.Deleted...)
	r.Failed = append(r.Failed, o.Failed...)
}

// Syncer reconciles directories against desired file sets.
type Syncer struct {
	logger    *slog.Logger
	chunkSize int
	writeFile func(dst string, r io.Reader) error
}

// New creates a Syncer.
func New(logger *slog.Logger) *Syncer {
	s := &Syncer{logger: logger, chunkSize: DefaultChunkSize}
	s.writeFile = s.replace
	return s
}

type onDisk struct {
	rel  string
	path string
}

// Plan computes the operations needed for target to match desired. Source
// payloads are read to compare contents but nothing is written.
func (s *Syncer) Plan(ctx context.Context, target Target, desired []string, src Source) (*Plan, error) {
	existing, err := s.scan(target)
	if err != nil {
		return nil, err
	}

	plan := &Plan{}
	want := make(map[string]string, len(desired))
	for _, name := range desired {
		want[paths.Key(name)] = name
	}

	// Case variants of one name are grouped; only the exact spelling, or the
	// first found, survives.
	keep := make(map[string]onDisk)
	keys := make([]string, 0, len(existing))
	for key := range existing {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		files := existing[key]
		name, wanted := want[key]
		if !wanted {
			if target.Prune {
				for _, f := range files {
					plan.Delete = append(plan.Delete, f.path)
				}
			}
			continue
		}
		chosen := 0
		for i, f := range files {
			if f.rel == name {
				chosen = i
				break
			}
		}
		keep[key] = files[chosen]
		for i, f := range files {
			if i != chosen {
				plan.Delete = append(plan.Delete, f.path)
			}
		}
	}

	for _, name := range desired {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		key := paths.Key(name)
		dst := filepath.Join(target.Dir, filepath.FromSlash(path.Clean(name)))
		if _, err := paths.ValidatePath(target.Dir, dst); err != nil {
			plan.Failed = append(plan.Failed, Failure{Path: name, Op: OpWrite, Err: err})
			continue
		}

		found, ok := keep[key]
		if !ok {
			plan.Install = append(plan.Install, Install{Name: name, Path: dst, Reason: Missing})
			continue
		}

		same, err := s.compare(ctx, found.path, src, name)
		switch {
		case errors.Is(err, ErrResourceNotFound):
			plan.Failed = append(plan.Failed, Failure{Path: name, Op: OpSource, Err: err})
		case err != nil:
			// Unreadable local copies are rewritten.
			s.logger.Warn("could not compare file, it will be replaced", "file", name, "error", err)
			plan.Install = append(plan.Install, Install{Name: name, Path: found.path, Reason: Changed})
		case same:
			plan.Current = append(plan.Current, name)
		default:
			plan.Install = append(plan.Install, Install{Name: name, Path: found.path, Reason: Changed})
		}
	}

	return plan, nil
}

// Apply executes a plan: deletions first, then writes. Errors are recorded
// per item and never stop the run, except for context cancellation.
func (s *Syncer) Apply(ctx context.Context, plan *Plan, src Source) Result {
	var res Result
	res.Failed = append(res.Failed, plan.Failed...)
	res.Skipped = append(res.Skipped, plan.Current...)

	for _, p := range plan.Delete {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to delete file", "path", p, "error", err)
			res.Failed = append(res.Failed, Failure{Path: p, Op: OpDelete, Err: err})
			continue
		}
		s.logger.Info("deleted", "path", p)
		res.Deleted = append(res.Deleted, p)
	}

	for _, in := range plan.Install {
		if err := ctx.Err(); err != nil {
			res.Failed = append(res.Failed, Failure{Path: in.Name, Op: OpWrite, Err: err})
			continue
		}
		if err := s.install(ctx, in, src); err != nil {
			op := OpWrite
			if errors.Is(err, ErrResourceNotFound) {
				op = OpSource
			}
			s.logger.Error("failed to install file", "file", in.Name, "error", err)
			res.Failed = append(res.Failed, Failure{Path: in.Name, Op: op, Err: err})
			continue
		}
		s.logger.Info("installed", "file", in.Name, "reason", string(in.Reason))
		res.Installed = append(res.Installed, in.Name)
	}

	return res
}

// Reconcile makes target match desired.
func (s *Syncer) Reconcile(ctx context.Context, target Target, desired []string, src Source) (Result, error) {
	plan, err := s.Plan(ctx, target, desired, src)
	if err != nil {
		return Result{}, err
	}
	return s.Apply(ctx, plan, src), nil
}

// Prune deletes every file in a flat target that is not in keep.
func (s *Syncer) Prune(ctx context.Context, target Target, keep []string) (Result, error) {
	plan, err := s.PrunePlan(target, keep)
	if err != nil {
		return Result{}, err
	}
	return s.Apply(ctx, plan, nil), nil
}

// PrunePlan lists the deletions Prune would make.
func (s *Syncer) PrunePlan(target Target, keep []string) (*Plan, error) {
	existing, err := s.scan(target)
	if err != nil {
		return nil, err
	}
	want := make(map[string]string, len(keep))
	for _, name := range keep {
		want[paths.Key(name)] = name
	}

	plan := &Plan{}
	for key, files := range existing {
		name, ok := want[key]
		if !ok {
			for _, f := range files {
				plan.Delete = append(plan.Delete, f.path)
			}
			continue
		}
		// Extra case variants go too, keep the exact spelling if present.
		chosen := 0
		for i, f := range files {
			if f.rel == name {
				chosen = i
			}
		}
		for i, f := range files {
			if i != chosen {
				plan.Delete = append(plan.Delete, f.path)
			}
		}
	}
	sort.Strings(plan.Delete)
	return plan, nil
}

// Matches reports whether every desired file is present with identical content.
func (s *Syncer) Matches(ctx context.Context, target Target, desired []string, src Source) (bool, error) {
	plan, err := s.Plan(ctx, target, desired, src)
	if err != nil {
		return false, err
	}
	if len(plan.Failed) > 0 {
		return false, plan.Failed[0]
	}
	return len(plan.Install) == 0 && (!target.Prune || len(plan.Delete) == 0), nil
}

// scan lists files in the target grouped by comparison key. A missing
// directory is created and reads as empty.
func (s *Syncer) scan(target Target) (map[string][]onDisk, error) {
	if err := os.MkdirAll(target.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", target.Dir, err)
	}

	out := make(map[string][]onDisk)
	if !target.Recursive {
		entries, err := os.ReadDir(target.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", target.Dir, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			key := paths.Key(e.Name())
			out[key] = append(out[key], onDisk{rel: e.Name(), path: filepath.Join(target.Dir, e.Name())})
		}
		return out, nil
	}

	err := filepath.WalkDir(target.Dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(target.Dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		key := paths.Key(rel)
		out[key] = append(out[key], onDisk{rel: rel, path: p})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", target.Dir, err)
	}
	return out, nil
}

func (s *Syncer) install(ctx context.Context, in Install, src Source) error {
	rc, err := src.Open(ctx, in.Name)
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(in.Path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return s.writeFile(in.Path, rc)
}

// replace truncates dst and copies r into it.
func (s *Syncer) replace(dst string, r io.Reader) error {
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", dst, err)
	}
	if _, err := io.CopyBuffer(f, r, make([]byte, s.chunkSize)); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}
	return nil
}

// compare streams the local file and the source payload side by side.
func (s *Syncer) compare(ctx context.Context, local string, src Source, name string) (bool, error) {
	rc, err := src.Open(ctx, name)
	if err != nil {
		return false, err
	}
	defer rc.Close()

	f, err := os.Open(local)
	if err != nil {
		return false, err
	}
	defer f.Close()

	return sameContent(f, rc, s.chunkSize)
}

func sameContent(a, b io.Reader, chunk int) (bool, error) {
	bufA := make([]byte, chunk)
	bufB := make([]byte, chunk)
	for {
		nA, errA := io.ReadFull(a, bufA)
		nB, errB := io.ReadFull(b, bufB)
		if errA != nil && !isEOF(errA) {
			return false, errA
		}
		if errB != nil && !isEOF(errB) {
			return false, errB
		}
		if !bytes.Equal(bufA[:nA], bufB[:nB]) {
			return false, nil
		}
		if isEOF(errA) || isEOF(errB) {
			return isEOF(errA) && isEOF(errB), nil
		}
	}
}

func isEOF(err error) bool {
	return err == io.EOF || err == io.ErrUnexpectedEOF
}

// Describe renders a plan for dry runs.
func Describe(plan *Plan) string {
	var b strings.Builder
	for _, p := range plan.Delete {
		fmt.Fprintf(&b, "  - %s\n", p)
	}
	for _, in := range plan.Install {
		fmt.Fprintf(&b, "  + %s (%s)\n", in.Name, in.Reason)
	}
	for _, f := range plan.Failed {
		fmt.Fprintf(&b, "  ! %s\n", f.Error())
	}
	return b.String()
}
