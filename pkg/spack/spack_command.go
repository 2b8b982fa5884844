package spack

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/daq-spack/bcpub/pkg/coordinate"
	"github.com/daq-spack/bcpub/pkg/util/console"
)

var _ Command = (*SpackCommand)(nil)

type SpackCommand struct {
	// Binary is the spack executable.
	Binary string
	// LogDir receives one log file per coordinate and operation. Output is
	// appended, each invocation preceded by its command line.
	LogDir string
	// InstallRoot, when set, drops Find results installed outside it.
	InstallRoot string
	// Markers override DefaultAlreadyCachedMarkers.
	Markers []string
	Env     []string
}

func NewSpackCommand(spackRoot, logDir string) *SpackCommand {
	return &SpackCommand{
		Binary: SpackCommandFromEnvironment(spackRoot),
		LogDir: logDir,
	}
}

func (c *SpackCommand) Activate(ctx context.Context, compiler coordinate.CompilerSpec, arch string) error {
	logName := "activate-" + strings.ReplaceAll(compiler.String(), "@", "")
	locateArgs := []string{"location", "--install-dir", compiler.String()}
	if arch != "" {
		locateArgs = append(locateArgs, "arch="+arch)
	}
	out, err := c.run(ctx, logName, true, locateArgs...)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// system compilers are not installed by spack
		console.Debugf("%s is not a spack-installed compiler, relying on registered compilers", compiler)
		return nil
	}
	dir := lastLine(out)
	if dir == "" {
		return nil
	}
	if _, err := c.run(ctx, logName, false, "compiler", "find", dir); err != nil {
		return fmt.Errorf("Failed to register compiler %s from %s: %w", compiler, dir, err)
	}
	return nil
}

func (c *SpackCommand) Install(ctx context.Context, coord coordinate.Coordinate, opts InstallOptions) error {
	args := []string{"install"}
	if opts.Fresh {
		args = append(args, "--fresh")
	}
	if opts.NoCache {
		args = append(args, "--no-cache")
	}
	if opts.Source {
		args = append(args, "--source")
	}
	if opts.Jobs > 0 {
		args = append(args, "-j", strconv.Itoa(opts.Jobs))
	}
	args = append(args, opts.ExtraArgs...)
	args = append(args, coord.SpecArgs()...)

	console.Infof("Installing %s, output in %s", coord.Label(), c.logPath(coord.Slug()+".install"))
	_, err := c.run(ctx, coord.Slug()+".install", false, args...)
	return err
}

func (c *SpackCommand) Reindex(ctx context.Context) error {
	_, err := c.run(ctx, "reindex", false, "reindex")
	return err
}

func (c *SpackCommand) Spec(ctx context.Context, coord coordinate.Coordinate) (string, error) {
	args := append([]string{"spec", "--long"}, coord.SpecArgs()...)
	return c.run(ctx, coord.Slug()+".spec", true, args...)
}

func (c *SpackCommand) Find(ctx context.Context, coord coordinate.Coordinate, ns Namespace) ([]Artifact, error) {
	args := []string{"find", "--no-groups", "--format", "{hash} {prefix}"}
	if ns == NamespaceLocal {
		args = append(args, "--install-tree", "local")
	}
	args = append(args, coord.SpecArgs()...)

	out, err := c.run(ctx, coord.Slug()+".find", true, args...)
	if err != nil {
		if isNoMatch(out) {
			return nil, nil
		}
		return nil, err
	}
	artifacts, err := ParseFind(out)
	if err != nil {
		return nil, err
	}
	if ns == NamespaceLocal && c.InstallRoot != "" {
		artifacts = withinRoot(artifacts, c.InstallRoot)
	}
	return artifacts, nil
}

func (c *SpackCommand) Closure(ctx context.Context, hash string) ([]string, error) {
	out, err := c.run(ctx, "closure-"+hash, true, "find", "--deps", "--no-groups", "--format", "{hash}", "/"+hash)
	if err != nil {
		return nil, err
	}
	hashes, err := ParseClosure(out)
	if err != nil {
		return nil, err
	}
	if len(hashes) == 0 || hashes[0] != hash {
		return nil, fmt.Errorf("dependency closure of %s does not start with it", hash)
	}
	return hashes, nil
}

func (c *SpackCommand) BuildcachePush(ctx context.Context, mirrorPath string, hash string, opts PushOptions) (PushOutcome, error) {
	args := []string{"buildcache", "push"}
	if opts.Unsigned {
		args = append(args, "--unsigned")
	}
	if opts.Only != "" {
		args = append(args, "--only", opts.Only)
	}
	if opts.Force {
		args = append(args, "--force")
	}
	args = append(args, mirrorPath, "/"+hash)

	out, err := c.run(ctx, "push-"+filepath.Base(mirrorPath), true, args...)
	if ctx.Err() != nil {
		return PushFailed, ctx.Err()
	}
	outcome := ClassifyPush(err, out, c.Markers)
	if outcome == PushFailed {
		if err == nil {
			err = fmt.Errorf("push of %s reported failure", hash)
		}
		return PushFailed, err
	}
	return outcome, nil
}

func (c *SpackCommand) BuildcacheUpdateIndex(ctx context.Context, mirrorPath string) error {
	_, err := c.run(ctx, "update-index-"+filepath.Base(mirrorPath), false, "buildcache", "update-index", mirrorPath)
	return err
}

// run executes spack, appending its combined output to the named log file.
// When capture is set the output is also returned.
func (c *SpackCommand) run(ctx context.Context, logName string, capture bool, args ...string) (string, error) {
	binary := c.Binary
	if binary == "" {
		binary = "spack"
	}
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Env = append(os.Environ(), "SPACK_COLOR=never")
	cmd.Env = append(cmd.Env, c.Env...)

	var buf bytes.Buffer
	var writers []io.Writer
	if capture {
		writers = append(writers, &buf)
	}

	logPath := ""
	if c.LogDir != "" {
		logPath = c.logPath(logName)
		logFile, err := openLog(logPath)
		if err != nil {
			return "", err
		}
		defer logFile.Close()
		fmt.Fprintf(logFile, "==> %s $ %s %s\n", time.Now().Format(time.RFC3339), binary, strings.Join(args, " "))
		writers = append(writers, logFile)
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}
	cmd.Stdout = io.MultiWriter(writers...)
	cmd.Stderr = cmd.Stdout

	console.Debug("$ " + strings.Join(cmd.Args, " "))
	err := cmd.Run()
	out := buf.String()
	if err != nil {
		if ctx.Err() != nil {
			return out, fmt.Errorf("spack %s interrupted: %w", args[0], ctx.Err())
		}
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return out, &CommandError{Args: args, ExitCode: exitCode, LogPath: logPath, Err: err}
	}
	return out, nil
}

func (c *SpackCommand) logPath(name string) string {
	return filepath.Join(c.LogDir, name+".log")
}

func openLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("Failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("Failed to open log %s: %w", path, err)
	}
	return f, nil
}

func withinRoot(artifacts []Artifact, root string) []Artifact {
	root = filepath.Clean(root)
	var kept []Artifact
	for _, a := range artifacts {
		rel, err := filepath.Rel(root, filepath.Clean(a.InstallPath))
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			console.Debugf("Ignoring %s installed outside %s", a.Hash, root)
			continue
		}
		kept = append(kept, a)
	}
	return kept
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
