// Package publish materializes installed spack artifacts and publishes
// their dependency closures to buildcache mirrors.
package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/daq-spack/bcpub/pkg/coordinate"
	"github.com/daq-spack/bcpub/pkg/errors"
	"github.com/daq-spack/bcpub/pkg/mirror"
	"github.com/daq-spack/bcpub/pkg/spack"
	"github.com/daq-spack/bcpub/pkg/util/console"
)

type Options struct {
	Install spack.InstallOptions
	Push    spack.PushOptions
	// ScratchDir receives the spec and hash dumps.
	ScratchDir string
	// BucketQualifier is the qualifier key naming the mirror bucket.
	BucketQualifier string
	// Namespace restricts hash discovery; defaults to the local install tree.
	Namespace spack.Namespace
	// SkipInstall publishes what is already installed.
	SkipInstall bool
	// VerifyIndex reads the bucket index back after updating it.
	VerifyIndex bool
	S3          mirror.S3Options
}

// DefaultInstallOptions rebuild stale installs from source without pulling
// binaries from any buildcache.
func DefaultInstallOptions(jobs int) spack.InstallOptions {
	return spack.InstallOptions{Jobs: jobs, Fresh: true, NoCache: true, Source: true}
}

// DefaultPushOptions push package contents only.
func DefaultPushOptions() spack.PushOptions {
	return spack.PushOptions{Unsigned: true, Only: "package"}
}

type Publisher struct {
	Command spack.Command
	Epochs  coordinate.EpochTable
	Options Options
	// Select resolves ambiguous hash discovery; SelectLatest by default.
	Select    SelectFunc
	OpenStore func(ctx context.Context, t mirror.Target) (mirror.Store, error)
	Now       func() time.Time
}

func NewPublisher(command spack.Command, epochs coordinate.EpochTable, opts Options) *Publisher {
	if epochs == nil {
		epochs = coordinate.DefaultEpochs
	}
	if opts.Namespace == "" {
		opts.Namespace = spack.NamespaceLocal
	}
	if opts.ScratchDir == "" {
		opts.ScratchDir = filepath.Join(os.TempDir(), "bcpub-hashes")
	}
	p := &Publisher{
		Command: command,
		Epochs:  epochs,
		Options: opts,
		Select:  SelectLatest,
		Now:     time.Now,
	}
	p.OpenStore = func(ctx context.Context, t mirror.Target) (mirror.Store, error) {
		return mirror.OpenStore(ctx, t, p.Options.S3)
	}
	return p
}

// publishRun carries one coordinate through the stages.
type publishRun struct {
	Run
	p      *Publisher
	coord  coordinate.Coordinate
	label  string
	target mirror.Target
	result Result
}

// Publish drives one coordinate from install to an updated mirror index.
// It never panics on stage failures; they are reported in the Result.
func (p *Publisher) Publish(ctx context.Context, c coordinate.Coordinate, mirrorBase string) Result {
	start := p.Now()
	r := &publishRun{p: p, coord: c, label: c.Label(), result: Result{Coordinate: c}}
	r.publish(ctx, mirrorBase)

	r.result.StagesCompleted = r.Completed()
	r.result.PushedCount = r.PushedCount
	r.result.PresentCount = r.PresentCount
	r.result.AlreadyCached = r.AlreadyInCache
	r.result.Duration = p.Now().Sub(start)

	if r.result.Err != nil {
		console.Errorf("%s", r.result.Err)
		if ctx.Err() != nil {
			if err := p.scratch().Cleanup(); err != nil {
				console.Debugf("Failed to clean scratch directory: %s", err)
			}
		}
	}
	return r.result
}

func (p *Publisher) scratch() Scratch {
	return Scratch{Dir: p.Options.ScratchDir}
}

func (r *publishRun) publish(ctx context.Context, mirrorBase string) {
	if err := r.coord.Validate(); err != nil {
		r.fail(StageStart, errors.CodeConfigInvalid, err)
		return
	}
	target, err := mirror.NewTarget(mirrorBase, r.coord, r.p.Epochs, r.p.Options.BucketQualifier)
	if err != nil {
		code := errors.Code(err)
		if code == "" {
			code = errors.CodeConfigInvalid
		}
		r.fail(StageStart, code, err)
		return
	}
	r.target = target
	r.result.Bucket = target.Path()

	console.Infof("Publishing %s to %s", r.label, target)

	steps := []struct {
		stage Stage
		fn    func(context.Context) bool
	}{
		{StageInstall, r.install},
		{StageReindex, r.reindex},
		{StageSpec, r.spec},
		{StageHashDiscovery, r.discover},
		{StagePush, r.push},
		{StageIndexUpdate, r.updateIndex},
	}
	for _, step := range steps {
		if step.stage == StageInstall && r.p.Options.SkipInstall {
			console.Infof("Skipping install of %s", r.label)
			continue
		}
		if err := ctx.Err(); err != nil {
			r.fail(step.stage, errors.CodeCanceled, err)
			return
		}
		if err := r.advance(step.stage); err != nil {
			r.fail(step.stage, errors.CodeConfigInvalid, err)
			return
		}
		if !step.fn(ctx) {
			return
		}
	}
	if err := r.advance(StageDone); err != nil {
		r.fail(StageDone, errors.CodeConfigInvalid, err)
		return
	}
	switch {
	case r.AlreadyInCache:
		console.Infof("%s is already in %s", r.label, target)
	default:
		console.Infof("Published %s: %d pushed to %s", r.label, r.PushedCount, target)
	}
}

func (r *publishRun) fail(stage Stage, code string, err error) {
	_ = r.advance(StageFailed)
	r.result.Err = &errors.StageError{
		Coordinate: r.coord.SpecString(),
		Stage:      stage.String(),
		ErrCode:    code,
		LogPath:    spack.LogPath(err),
		Err:        err,
	}
}

func (r *publishRun) warn(stage Stage, err error) {
	msg := fmt.Sprintf("%s: %s", stage, err)
	console.Warnf("%s: %s", r.label, msg)
	r.result.Warnings = append(r.result.Warnings, msg)
}

func (r *publishRun) install(ctx context.Context) bool {
	if err := r.p.Command.Install(ctx, r.coord, r.p.Options.Install); err != nil {
		r.fail(StageInstall, stageCode(ctx, errors.CodeInstallFailed), err)
		return false
	}
	return true
}

// installed artifacts exist on disk even when the index is stale, so a
// failed reindex only warns
func (r *publishRun) reindex(ctx context.Context) bool {
	if err := r.p.Command.Reindex(ctx); err != nil {
		r.warn(StageReindex, err)
	}
	return true
}

// The spec dump is for operators; nothing reads it back.
func (r *publishRun) spec(ctx context.Context) bool {
	text, err := r.p.Command.Spec(ctx, r.coord)
	if err != nil {
		r.fail(StageSpec, stageCode(ctx, errors.CodeSpecFailed), err)
		return false
	}
	path, err := r.p.scratch().WriteSpec(r.coord, text)
	if err != nil {
		r.fail(StageSpec, errors.CodeSpecFailed, err)
		return false
	}
	r.result.SpecFile = path
	console.Debugf("Wrote spec of %s to %s", r.label, path)
	return true
}

func (r *publishRun) discover(ctx context.Context) bool {
	artifacts, err := r.p.Command.Find(ctx, r.coord, r.p.Options.Namespace)
	if err != nil {
		r.fail(StageHashDiscovery, stageCode(ctx, errors.CodeHashDiscoveryFailed), err)
		return false
	}
	if len(artifacts) == 0 {
		r.fail(StageHashDiscovery, errors.CodeHashDiscoveryFailed,
			fmt.Errorf("no installed artifact in the %s install tree matches %s", r.p.Options.Namespace, r.coord.SpecString()))
		return false
	}

	selected := artifacts[0]
	if len(artifacts) > 1 {
		selected, err = r.resolveAmbiguity(ctx, artifacts)
		if err != nil {
			r.fail(StageHashDiscovery, stageCode(ctx, errors.CodeHashDiscoveryFailed), err)
			return false
		}
	}
	r.result.Selected = selected.Hash

	closure, err := r.p.Command.Closure(ctx, selected.Hash)
	if err != nil {
		r.fail(StageHashDiscovery, stageCode(ctx, errors.CodeHashDiscoveryFailed), err)
		return false
	}
	if len(closure) == 0 {
		r.fail(StageHashDiscovery, errors.CodeHashDiscoveryFailed, fmt.Errorf("empty dependency closure for %s", selected.Hash))
		return false
	}
	path, err := r.p.scratch().WriteHashes(r.coord, closure)
	if err != nil {
		r.fail(StageHashDiscovery, errors.CodeHashDiscoveryFailed, err)
		return false
	}
	r.result.HashFile = path
	console.Debugf("Wrote %d hashes of %s to %s", len(closure), r.label, path)
	return true
}

func (r *publishRun) resolveAmbiguity(ctx context.Context, artifacts []spack.Artifact) (spack.Artifact, error) {
	candidates, err := StatArtifacts(ctx, artifacts)
	if err != nil {
		return spack.Artifact{}, err
	}
	pick := r.p.Select
	if pick == nil {
		pick = SelectLatest
	}
	chosen := pick(candidates)
	r.result.Ambiguous = true

	installed := "at an unknown time"
	if !chosen.Modified.IsZero() {
		installed = console.FormatTime(chosen.Modified)
	}
	console.Warnf("%s: %d installed builds match, using %s (installed %s)", r.label, len(candidates), chosen.Hash, installed)
	for _, c := range candidates {
		if c.Hash != chosen.Hash {
			console.Debugf("  passed over %s at %s", c.Hash, c.InstallPath)
		}
	}
	return chosen.Artifact, nil
}

// push walks the hash dump in file order. If the first hash is already in
// the cache its closure is taken to be published already and nothing else
// is pushed. Otherwise at least one hash must actually be pushed; hashes
// found already present are informational.
func (r *publishRun) push(ctx context.Context) bool {
	hashes, err := ReadHashes(r.result.HashFile)
	if err != nil {
		r.fail(StagePush, errors.CodePushFailed, err)
		return false
	}
	bucket := r.target.Path()
	var lastErr error
	for i, hash := range hashes {
		if err := ctx.Err(); err != nil {
			r.fail(StagePush, errors.CodeCanceled, err)
			return false
		}
		outcome, err := r.p.Command.BuildcachePush(ctx, bucket, hash, r.p.Options.Push)
		switch outcome {
		case spack.AlreadyPresent:
			if i == 0 {
				r.AlreadyInCache = true
				console.Infof("%s (%s) is already in %s, skipping its dependencies", r.label, hash, bucket)
				return true
			}
			r.PresentCount++
			console.Debugf("%s is already in %s", hash, bucket)
		case spack.Pushed:
			r.PushedCount++
			console.Debugf("Pushed %s to %s", hash, bucket)
		default:
			lastErr = err
			console.Warnf("Failed to push %s of %s: %s", hash, r.label, err)
		}
	}
	if err := ctx.Err(); err != nil {
		r.fail(StagePush, errors.CodeCanceled, err)
		return false
	}
	if r.PushedCount == 0 {
		if lastErr == nil {
			lastErr = fmt.Errorf("no hashes to push in %s", r.result.HashFile)
		}
		r.fail(StagePush, errors.CodePushFailed, fmt.Errorf("nothing was pushed to %s: %w", bucket, lastErr))
		return false
	}
	return true
}

// the artifacts are on the mirror already; a stale index only hurts
// discoverability, so failures here warn
func (r *publishRun) updateIndex(ctx context.Context) bool {
	if err := r.p.Command.BuildcacheUpdateIndex(ctx, r.target.Path()); err != nil {
		r.warn(StageIndexUpdate, err)
		return true
	}
	if r.p.Options.VerifyIndex {
		r.verifyIndex(ctx)
	}
	return true
}

func (r *publishRun) verifyIndex(ctx context.Context) {
	store, err := r.p.OpenStore(ctx, r.target)
	if err != nil {
		r.warn(StageIndexUpdate, fmt.Errorf("cannot open %s: %w", r.target, err))
		return
	}
	entries, err := mirror.ReadIndex(ctx, store)
	if err != nil {
		r.warn(StageIndexUpdate, fmt.Errorf("index of %s is not readable: %w", r.target, err))
		return
	}
	if r.result.Selected != "" && !mirror.Contains(entries, r.result.Selected) {
		r.warn(StageIndexUpdate, fmt.Errorf("index of %s does not list %s", r.target, r.result.Selected))
		return
	}
	console.Debugf("Index of %s lists %d packages", r.target, len(entries))
}

func stageCode(ctx context.Context, code string) string {
	if ctx.Err() != nil {
		return errors.CodeCanceled
	}
	return code
}
