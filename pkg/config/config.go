package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/daq-spack/bcpub/pkg/coordinate"
	"github.com/daq-spack/bcpub/pkg/mirror"
	"github.com/daq-spack/bcpub/pkg/publish"
	"github.com/daq-spack/bcpub/pkg/spack"
	"github.com/daq-spack/bcpub/pkg/util/files"
)

type Install struct {
	Fresh     bool     `json:"fresh" yaml:"fresh"`
	NoCache   bool     `json:"no_cache" yaml:"no_cache"`
	Source    bool     `json:"source" yaml:"source"`
	ExtraArgs []string `json:"extra_args,omitempty" yaml:"extra_args"`
}

type Push struct {
	Unsigned bool   `json:"unsigned" yaml:"unsigned"`
	Only     string `json:"only,omitempty" yaml:"only"`
	Force    bool   `json:"force,omitempty" yaml:"force"`
	// Markers replace the built-in "already in the buildcache" phrases.
	Markers []string `json:"markers,omitempty" yaml:"markers"`
}

// S3 holds the non-secret S3 settings. Credentials come from the
// environment only.
type S3 struct {
	Endpoint  string `json:"endpoint,omitempty" yaml:"endpoint"`
	Region    string `json:"region,omitempty" yaml:"region"`
	PathStyle bool   `json:"path_style,omitempty" yaml:"path_style"`
}

type Config struct {
	SpackRoot       string                 `json:"spack_root,omitempty" yaml:"spack_root"`
	InstallRoot     string                 `json:"install_root,omitempty" yaml:"install_root"`
	ScratchDir      string                 `json:"scratch_dir,omitempty" yaml:"scratch_dir"`
	LogDir          string                 `json:"log_dir,omitempty" yaml:"log_dir"`
	Mirror          string                 `json:"mirror,omitempty" yaml:"mirror"`
	Jobs            int                    `json:"jobs,omitempty" yaml:"jobs"`
	Arch            string                 `json:"arch,omitempty" yaml:"arch"`
	Package         string                 `json:"package,omitempty" yaml:"package"`
	Qualifiers      []string               `json:"qualifiers,omitempty" yaml:"qualifiers"`
	BucketQualifier string                 `json:"bucket_qualifier,omitempty" yaml:"bucket_qualifier"`
	Namespace       string                 `json:"namespace,omitempty" yaml:"namespace"`
	VerifyIndex     bool                   `json:"verify_index,omitempty" yaml:"verify_index"`
	Install         Install                `json:"install" yaml:"install"`
	Push            Push                   `json:"push" yaml:"push"`
	S3              S3                     `json:"s3" yaml:"s3"`
	Epochs          []coordinate.EpochRule `json:"epochs,omitempty" yaml:"epochs"`
	Batch           []publish.BatchEntry   `json:"batch,omitempty" yaml:"batch"`

	filename string
}

func DefaultConfig() *Config {
	return &Config{
		ScratchDir:      "hashes",
		LogDir:          "logs",
		Jobs:            runtime.NumCPU(),
		BucketQualifier: mirror.DefaultBucketQualifier,
		Namespace:       string(spack.NamespaceLocal),
		Install: Install{
			Fresh:   true,
			NoCache: true,
			Source:  true,
		},
		Push: Push{
			Unsigned: true,
			Only:     "package",
		},
	}
}

func FromYAML(contents []byte) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(contents, config); err != nil {
		return nil, &ParseError{Err: err}
	}
	if len(contents) != 0 {
		if err := Validate(string(contents), ""); err != nil {
			return nil, err
		}
	}
	return config, nil
}

// Filename is the file the config was loaded from, or the empty string for
// the built-in defaults.
func (c *Config) Filename() string {
	return c.filename
}

// ValidateAndComplete resolves relative paths against dir, the directory
// holding the config file, and checks the values the schema cannot.
func (c *Config) ValidateAndComplete(dir string) error {
	for _, p := range []*string{&c.SpackRoot, &c.InstallRoot, &c.ScratchDir, &c.LogDir} {
		resolved, err := resolvePath(dir, *p)
		if err != nil {
			return err
		}
		*p = resolved
	}
	if c.Mirror != "" && !isURL(c.Mirror) {
		resolved, err := resolvePath(dir, mirror.LocalPath(c.Mirror))
		if err != nil {
			return err
		}
		c.Mirror = resolved
	}

	if c.SpackRoot != "" {
		exists, err := files.IsDir(c.SpackRoot)
		if err != nil || !exists {
			return &ValidationError{Field: "spack_root", Value: c.SpackRoot, Message: "is not a directory"}
		}
		binary := filepath.Join(c.SpackRoot, "bin", "spack")
		if !files.IsExecutable(binary) {
			return &ValidationError{Field: "spack_root", Value: c.SpackRoot, Message: fmt.Sprintf("%s is not executable", binary)}
		}
	}
	if c.Jobs < 1 {
		return &ValidationError{Field: "jobs", Value: fmt.Sprint(c.Jobs), Message: "must be at least 1"}
	}
	if err := c.EpochTable().Validate(); err != nil {
		return &ValidationError{Field: "epochs", Message: err.Error()}
	}
	return nil
}

// EpochTable returns the configured epochs ahead of the built-in ones, so a
// configured rule wins for any compiler it matches.
func (c *Config) EpochTable() coordinate.EpochTable {
	table := make(coordinate.EpochTable, 0, len(c.Epochs)+len(coordinate.DefaultEpochs))
	table = append(table, c.Epochs...)
	return append(table, coordinate.DefaultEpochs...)
}

// Template returns the batch template built from the package settings.
func (c *Config) Template() publish.Template {
	return publish.Template{
		Name:       c.Package,
		Arch:       c.Arch,
		Qualifiers: append([]string(nil), c.Qualifiers...),
	}
}

func (c *Config) S3Options() mirror.S3Options {
	return mirror.S3Options{
		Endpoint:  c.S3.Endpoint,
		Region:    c.S3.Region,
		PathStyle: c.S3.PathStyle,
	}
}

func (c *Config) PublishOptions() publish.Options {
	return publish.Options{
		Install: spack.InstallOptions{
			Jobs:      c.Jobs,
			Fresh:     c.Install.Fresh,
			NoCache:   c.Install.NoCache,
			Source:    c.Install.Source,
			ExtraArgs: c.Install.ExtraArgs,
		},
		Push: spack.PushOptions{
			Unsigned: c.Push.Unsigned,
			Only:     c.Push.Only,
			Force:    c.Push.Force,
		},
		ScratchDir:      c.ScratchDir,
		BucketQualifier: c.BucketQualifier,
		Namespace:       spack.Namespace(c.Namespace),
		VerifyIndex:     c.VerifyIndex,
		S3:              c.S3Options(),
	}
}

// SpackCommand returns the exec-backed spack adapter for this config,
// logging into logDir.
func (c *Config) SpackCommand(logDir string) *spack.SpackCommand {
	command := spack.NewSpackCommand(c.SpackRoot, logDir)
	command.InstallRoot = c.InstallRoot
	if len(c.Push.Markers) > 0 {
		command.Markers = c.Push.Markers
	}
	return command
}

func resolvePath(dir, p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if p[0] != '~' && !filepath.IsAbs(p) && dir != "" {
		p = filepath.Join(dir, p)
	}
	return files.ExpandUser(p)
}

func isURL(s string) bool {
	scheme, _, found := strings.Cut(s, "://")
	return found && scheme != "file"
}
