package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/daq-spack/bcpub/pkg/publish"
	"github.com/daq-spack/bcpub/pkg/util/console"
)

func newPublishCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish NAME@VERSION",
		Short: "Build one package variant and push it to its buildcache bucket",
		Example: `  bcpub publish artdaq-suite@v4_01_00 -q s=132 -q cxxstd=20 --compiler gcc@13.1.0
  bcpub publish artdaq-suite@v4_01_00 -q s=132 --compiler 13.1.0 --skip-install --mirror s3://daq-buildcache`,
		RunE: publishPackage,
		Args: cobra.ExactArgs(1),
	}
	addCoordinateFlags(cmd)
	addMirrorFlag(cmd)
	addJobsFlag(cmd)
	addJSONFlag(cmd)
	addSkipInstallFlag(cmd)
	return cmd
}

func publishPackage(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	c, err := parseCoordinate(cfg, args[0])
	if err != nil {
		return err
	}
	base, err := mirrorBase(cfg)
	if err != nil {
		return err
	}

	result := newPublisher(cfg, cfg.LogDir).Publish(ctx, c, base)

	if jsonFlag {
		if err := outputJSON(newResultOutput(result)); err != nil {
			return err
		}
	} else {
		console.Output(summarizeResult(result))
	}
	if result.Err != nil {
		return &reportedError{err: result.Err}
	}
	return nil
}

// resultOutput adds the error fields a publish.Result leaves out of JSON.
type resultOutput struct {
	publish.Result
	Error       string `json:"error,omitempty"`
	ErrorKind   string `json:"error_kind,omitempty"`
	FailedStage string `json:"failed_stage,omitempty"`
	LogPath     string `json:"log_path,omitempty"`
}

func newResultOutput(r publish.Result) resultOutput {
	out := resultOutput{Result: r}
	if r.Err != nil {
		out.Error = r.Err.Error()
		out.ErrorKind = r.ErrorKind()
		out.FailedStage = r.FailedStage()
		out.LogPath = r.Err.LogPath
	}
	return out
}

// summarizeResult renders one line of key=value pairs.
func summarizeResult(r publish.Result) string {
	status := "ok"
	if !r.OK() {
		status = "failed"
	}
	fields := []string{
		status,
		fmt.Sprintf("%q", r.Coordinate.SpecString()),
	}
	if r.Bucket != "" {
		fields = append(fields, "bucket="+r.Bucket)
	}
	if r.OK() {
		fields = append(fields,
			fmt.Sprintf("pushed=%d", r.PushedCount),
			fmt.Sprintf("present=%d", r.PresentCount),
			fmt.Sprintf("already_cached=%t", r.AlreadyCached),
		)
	} else {
		fields = append(fields, "stage="+r.FailedStage(), "error="+r.ErrorKind())
		if r.Err.LogPath != "" {
			fields = append(fields, "log="+r.Err.LogPath)
		}
	}
	if len(r.Warnings) > 0 {
		fields = append(fields, fmt.Sprintf("warnings=%d", len(r.Warnings)))
	}
	return strings.Join(fields, " ")
}
