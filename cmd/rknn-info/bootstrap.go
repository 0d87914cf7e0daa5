package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amikos-tech/pure-rknn/rknn"
)

func newBootstrapCmd(opts *rootOptions) *cobra.Command {
	var (
		cacheDir        string
		version         string
		sha256          string
		disableDownload bool
	)

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Locate or download librknnrt.so and print its path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var bootstrapOpts []rknn.BootstrapOption
			if opts.libPath != "" {
				bootstrapOpts = append(bootstrapOpts, rknn.WithBootstrapLibraryPath(opts.libPath))
			}
			if cacheDir != "" {
				bootstrapOpts = append(bootstrapOpts, rknn.WithBootstrapCacheDir(cacheDir))
			}
			if version != "" {
				bootstrapOpts = append(bootstrapOpts, rknn.WithBootstrapVersion(version))
			}
			if sha256 != "" {
				bootstrapOpts = append(bootstrapOpts, rknn.WithBootstrapExpectedSHA256(sha256))
			}
			if cmd.Flags().Changed("no-download") {
				bootstrapOpts = append(bootstrapOpts, rknn.WithBootstrapDisableDownload(disableDownload))
			}

			path, err := rknn.EnsureRuntimeLibrary(bootstrapOpts...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "bootstrap cache directory (default: RKNN_CACHE_DIR or the user cache dir)")
	cmd.Flags().StringVar(&version, "runtime-version", "", fmt.Sprintf("rknn-toolkit2 release to download (default %s)", rknn.DefaultRuntimeVersion))
	cmd.Flags().StringVar(&sha256, "sha256", "", "expected SHA256 of the downloaded library")
	cmd.Flags().BoolVar(&disableDownload, "no-download", false, "fail instead of downloading when the library is not cached")
	return cmd
}
