package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/amikos-tech/pure-rknn/rknn"
)

type rootOptions struct {
	libPath  string
	verbose  bool
	coreMask string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "rknn-info",
		Short:         "Inspect and run RKNN models",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !opts.verbose {
				rknn.SetLogger(zap.NewNop())
				return nil
			}
			logger, err := zap.NewDevelopment()
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			rknn.SetLogger(logger)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			rknn.SetLogger(nil)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.libPath, "lib", "", "path to librknnrt.so (default: RKNN_LIB_PATH, system paths, then bootstrap cache)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&opts.coreMask, "core-mask", "auto", "NPU cores to use: auto, 0, 1, 2, 0_1, 0_1_2, all")

	cmd.AddCommand(
		newInfoCmd(opts),
		newRunCmd(opts),
		newBootstrapCmd(opts),
	)
	return cmd
}

// initRuntime loads the runtime library. The returned func drops the reference.
func (o *rootOptions) initRuntime() (func() error, error) {
	var bootstrapOpts []rknn.BootstrapOption
	if o.libPath != "" {
		bootstrapOpts = append(bootstrapOpts, rknn.WithBootstrapLibraryPath(o.libPath))
	}
	if err := rknn.InitializeEnvironmentWithBootstrap(bootstrapOpts...); err != nil {
		return nil, fmt.Errorf("failed to initialize RKNN runtime: %w", err)
	}
	return rknn.DestroyEnvironment, nil
}

// openSession opens modelPath and applies the --core-mask flag.
func (o *rootOptions) openSession(modelPath string) (*rknn.Session, error) {
	mask, err := rknn.ParseCoreMask(o.coreMask)
	if err != nil {
		return nil, err
	}
	session, err := rknn.Open(modelPath)
	if err != nil {
		return nil, err
	}
	if mask != rknn.CoreMaskAuto {
		if err := session.SetCoreMask(mask); err != nil {
			return nil, errorsJoin(err, session.Destroy())
		}
	}
	return session, nil
}
