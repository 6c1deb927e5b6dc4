package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Archive finished JSONL files to S3 and exit",
		RunE:  runUpload,
	}

	cmd.Flags().String("dir", "", "Directory to scan (default: sink.jsonl.dir)")

	RootCmd.AddCommand(cmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := readConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = cfg.Sink.JSONL.Dir
	}
	if cfg.Archive.Bucket == "" || cfg.Archive.Region == "" {
		return fmt.Errorf("archive.bucket and archive.region are required")
	}

	up, err := newUploader(cmd.Context(), cfg, nil)
	if err != nil {
		return err
	}

	n, err := up.UploadDir(cmd.Context(), dir)
	fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %d file(s) from %s\n", n, dir)
	return err
}
