package cli

import (
	"github.com/spf13/cobra"

	"github.com/daq-spack/bcpub/pkg/mirror"
	"github.com/daq-spack/bcpub/pkg/util/console"
)

func newBucketCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "bucket NAME@VERSION",
		Short:   "Print the buildcache bucket a package variant is published to",
		Example: `  bcpub bucket artdaq-suite@v4_01_00 -q s=132 --compiler gcc@13.1.0`,
		RunE:    printBucket,
		Args:    cobra.ExactArgs(1),
	}
	addCoordinateFlags(cmd)
	addMirrorFlag(cmd)
	cmd.Flags().BoolP("name-only", "n", false, "Print only the bucket name, without the mirror base")
	return cmd
}

func printBucket(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	nameOnly, err := cmd.Flags().GetBool("name-only")
	if err != nil {
		return err
	}
	c, err := parseCoordinate(cfg, args[0])
	if err != nil {
		return err
	}

	base := "."
	if !nameOnly {
		if base, err = mirrorBase(cfg); err != nil {
			return err
		}
	}
	target, err := mirror.NewTarget(base, c, cfg.EpochTable(), cfg.BucketQualifier)
	if err != nil {
		return err
	}
	if nameOnly {
		console.Output(target.Bucket)
	} else {
		console.Output(target.Path())
	}
	return nil
}
