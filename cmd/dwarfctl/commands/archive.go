package commands

import (
	"bytes"
	"fmt"
	"time"

	"github.com/dwarf-astro/dwarfctl/internal/config"
	"github.com/dwarf-astro/dwarfctl/pkg/errors"
	"github.com/dwarf-astro/dwarfctl/pkg/security"
	"github.com/dwarf-astro/dwarfctl/pkg/session"
	"github.com/dwarf-astro/dwarfctl/pkg/storage"
	"github.com/spf13/cobra"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Archive the notification log to S3",
}

var archiveUploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Export the notification log and upload it",
	RunE:  runArchiveUpload,
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded archives",
	RunE:  runArchiveList,
}

var archiveFetchCmd = &cobra.Command{
	Use:   "fetch <key> <local-path>",
	Short: "Download an archive",
	Args:  cobra.ExactArgs(2),
	RunE:  runArchiveFetch,
}

var archivePrune bool

func init() {
	archiveUploadCmd.Flags().BoolVar(&archivePrune, "prune", false, "Delete the uploaded notifications locally")
	archiveCmd.AddCommand(archiveUploadCmd, archiveListCmd, archiveFetchCmd)
	rootCmd.AddCommand(archiveCmd)
}

func storageClient(cmd *cobra.Command, cfg *config.Config) (*storage.Client, error) {
	if cfg.S3Bucket == "" {
		return nil, errors.New("no bucket: set --s3-bucket or DWARF_S3_BUCKET")
	}
	client, err := storage.NewClient(cmd.Context(), cfg.S3Bucket, storage.Options{
		Region:   cfg.S3Region,
		Endpoint: cfg.S3Endpoint,
	})
	if err != nil {
		return nil, errors.Wrap(err, "S3 client failed")
	}
	return client.WithValidator(security.NewValidator(cfg.MaxArchiveSize)), nil
}

func runArchiveUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := storageClient(cmd, cfg)
	if err != nil {
		return err
	}
	repo, err := openRepository(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer repo.Close()

	cutoff := time.Now()
	var buf bytes.Buffer
	n, err := repo.ExportJSONLines(ctx, &buf)
	if err != nil {
		return errors.Wrap(err, "export failed")
	}
	if n == 0 {
		fmt.Println("Nothing to archive")
		return nil
	}

	seq, err := repo.AllocateArchiveID(ctx)
	if err != nil {
		return errors.Wrap(err, "archive id allocation failed")
	}
	// The archive is filed under the last known device.
	last := session.NewPersistentStore(session.NewMemoryStore(), repo)
	if err := last.Restore(ctx); err != nil {
		return errors.Wrap(err, "session restore failed")
	}

	key := storage.ArchiveKey(cfg.S3Prefix, last.Snapshot().DeviceName, seq, cutoff)
	res, err := client.Upload(ctx, key, &buf)
	if err != nil {
		return errors.Wrap(err, "upload failed")
	}
	successColor.Printf("Uploaded %d notifications to s3://%s/%s (%d bytes)\n", n, cfg.S3Bucket, res.Key, res.Size)

	if archivePrune {
		deleted, err := repo.PruneNotifications(ctx, cutoff)
		if err != nil {
			return errors.Wrap(err, "prune failed")
		}
		fmt.Printf("Deleted %d notifications\n", deleted)
	}
	return nil
}

func runArchiveList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := storageClient(cmd, cfg)
	if err != nil {
		return err
	}

	keys, err := client.ListObjects(cmd.Context(), cfg.S3Prefix)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		fmt.Println("No archives found")
		return nil
	}
	for _, k := range keys {
		fmt.Println(k)
	}
	return nil
}

func runArchiveFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := storageClient(cmd, cfg)
	if err != nil {
		return err
	}

	ok, err := client.Exists(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("archive %s not found", args[0])
	}

	res, err := client.Download(cmd.Context(), args[0], args[1])
	if err != nil {
		return errors.Wrap(err, "download failed")
	}
	fmt.Printf("%s  %s (%d bytes)\n", res.SHA256, res.LocalPath, res.Size)
	return nil
}
