package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/daq-spack/bcpub/pkg/errors"
	"github.com/daq-spack/bcpub/pkg/global"
	"github.com/daq-spack/bcpub/pkg/publish"
	"github.com/daq-spack/bcpub/pkg/util/console"
)

var (
	packageFlag    string
	noProgressFlag bool
)

func newBatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [LIST]",
		Short: "Publish every entry of a batch list in order",
		Long: `Publish every entry of a batch list in order. Entries come from the
batch list in ` + global.ConfigFilename + `, or from LIST, a YAML file holding a list of
entries:

  - version: v4_01_00
    qualifier: s132
    compiler: 13.1.0
    standard: c++20

A failed entry does not stop the batch. The command exits non-zero if any
entry failed.`,
		RunE: runBatch,
		Args: cobra.MaximumNArgs(1),
	}
	cmd.Flags().StringVar(&packageFlag, "package", "", "Package to publish, defaults to package in "+global.ConfigFilename)
	cmd.Flags().BoolVar(&noProgressFlag, "no-progress", false, "Print log lines instead of a progress bar")
	addArchFlag(cmd)
	addMirrorFlag(cmd)
	addJobsFlag(cmd)
	addJSONFlag(cmd)
	addSkipInstallFlag(cmd)
	return cmd
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if packageFlag != "" {
		cfg.Package = packageFlag
	}
	entries := cfg.Batch
	if len(args) == 1 {
		entries, err = readBatchList(args[0])
		if err != nil {
			return err
		}
	}
	if len(entries) == 0 {
		return errors.ConfigInvalid(fmt.Sprintf("No batch entries. Add a batch list to %s or pass a list file", global.ConfigFilename))
	}
	if cfg.Package == "" {
		return errors.ConfigInvalid(fmt.Sprintf("No package to publish. Set package in %s or pass --package", global.ConfigFilename))
	}
	coords, err := cfg.Template().Expand(entries)
	if err != nil {
		return err
	}
	base, err := mirrorBase(cfg)
	if err != nil {
		return err
	}

	id := publish.NewBatchID()
	logDir := filepath.Join(cfg.LogDir, id)
	publisher := newPublisher(cfg, logDir)

	var done func(int, publish.Result)
	var progress *batchProgress
	if !jsonFlag && !noProgressFlag && !global.Verbose && console.IsTTY(os.Stderr) {
		progress, err = newBatchProgress(id, len(coords), logDir)
		if err != nil {
			return err
		}
		done = progress.done
	}

	batch := publisher.RunBatch(ctx, id, coords, base, done)

	if progress != nil {
		progress.wait()
		for _, r := range batch.Results {
			if r.Err != nil {
				console.Errorf("%s", r.Err)
			}
		}
	}

	if jsonFlag {
		if err := outputJSON(newBatchOutput(batch)); err != nil {
			return err
		}
	} else {
		console.Output(fmt.Sprintf("succeeded=%d failed=%d warnings=%d", batch.Succeeded, batch.Failed, batch.Warnings))
	}
	if !batch.OK() {
		return &reportedError{err: fmt.Errorf("%d of %d batch entries failed", batch.Failed, len(batch.Results))}
	}
	return nil
}

type batchOutput struct {
	ID        string         `json:"id"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Warnings  int            `json:"warnings"`
	Duration  string         `json:"duration"`
	Results   []resultOutput `json:"results"`
}

func newBatchOutput(b publish.BatchResult) batchOutput {
	out := batchOutput{
		ID:        b.ID,
		Succeeded: b.Succeeded,
		Failed:    b.Failed,
		Warnings:  b.Warnings,
		Duration:  b.Duration.String(),
	}
	for _, r := range b.Results {
		out.Results = append(out.Results, newResultOutput(r))
	}
	return out
}

func readBatchList(path string) ([]publish.BatchEntry, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Failed to read batch list: %w", err)
	}
	var entries []publish.BatchEntry
	if err := yaml.Unmarshal(contents, &entries); err != nil {
		return nil, errors.ConfigInvalid(fmt.Sprintf("Failed to parse batch list %s: %s", path, err))
	}
	return entries, nil
}
