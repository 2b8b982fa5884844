package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/daq-spack/bcpub/pkg/config"
	"github.com/daq-spack/bcpub/pkg/mirror"
	"github.com/daq-spack/bcpub/pkg/util/console"
	"github.com/daq-spack/bcpub/pkg/util/files"
)

func newMirrorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Inspect buildcache buckets",
	}
	cmd.AddCommand(newMirrorListCommand(), newMirrorVerifyCommand())
	return cmd
}

func newMirrorListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list BUCKET",
		Short: "List the packages in a bucket index",
		Long: `List the packages in a bucket index. BUCKET is a bucket name under the
configured mirror, such as s132-e28, or a full path or s3:// URL.`,
		RunE:    listMirror,
		Args:    cobra.ExactArgs(1),
		Aliases: []string{"ls"},
	}
	addMirrorFlag(cmd)
	cmd.Flags().BoolP("quiet", "q", false, "Quiet output, only display hashes")
	return cmd
}

func newMirrorVerifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify BUCKET",
		Short: "Check that a bucket has a readable index",
		RunE:  verifyMirror,
		Args:  cobra.ExactArgs(1),
	}
	addMirrorFlag(cmd)
	return cmd
}

// bucketTarget resolves a bucket argument against the configured mirror.
func bucketTarget(cfg *config.Config, arg string) (mirror.Target, error) {
	if strings.Contains(arg, "://") || strings.ContainsRune(arg, '/') {
		if strings.Contains(arg, "://") && !strings.HasPrefix(arg, "file://") {
			return mirror.Target{BasePath: arg}, nil
		}
		p, err := files.ExpandUser(mirror.LocalPath(arg))
		if err != nil {
			return mirror.Target{}, err
		}
		return mirror.Target{BasePath: filepath.Dir(p), Bucket: filepath.Base(p)}, nil
	}
	base, err := mirrorBase(cfg)
	if err != nil {
		return mirror.Target{}, err
	}
	return mirror.Target{BasePath: base, Bucket: arg}, nil
}

func openBucket(cmd *cobra.Command, arg string) (mirror.Target, mirror.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return mirror.Target{}, nil, err
	}
	target, err := bucketTarget(cfg, arg)
	if err != nil {
		return mirror.Target{}, nil, err
	}
	store, err := mirror.OpenStore(cmd.Context(), target, cfg.S3Options())
	if err != nil {
		return mirror.Target{}, nil, err
	}
	return target, store, nil
}

func listMirror(cmd *cobra.Command, args []string) error {
	quiet, err := cmd.Flags().GetBool("quiet")
	if err != nil {
		return err
	}
	target, store, err := openBucket(cmd, args[0])
	if err != nil {
		return err
	}
	entries, err := mirror.ReadIndex(cmd.Context(), store)
	if err != nil {
		return fmt.Errorf("Failed to read index of %s: %w", target, err)
	}

	if quiet {
		for _, e := range entries {
			console.Output(e.Hash)
		}
		return nil
	}

	if info, err := store.Stat(cmd.Context(), mirror.IndexKey); err == nil && !info.Modified.IsZero() {
		console.Infof("Index of %s updated %s", target, console.FormatTime(info.Modified))
	}
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVERSION\tCOMPILER\tHASH")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Name, e.Version, e.Compiler, e.Hash)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	console.Output(strings.TrimSuffix(buf.String(), "\n"))
	return nil
}

func verifyMirror(cmd *cobra.Command, args []string) error {
	target, store, err := openBucket(cmd, args[0])
	if err != nil {
		return err
	}
	count, err := mirror.VerifyIndex(cmd.Context(), store)
	if err != nil {
		return fmt.Errorf("Index of %s is not usable: %w", target, err)
	}
	console.Output(fmt.Sprintf("%s: %d packages", target, count))
	return nil
}
