package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rentalpipeline/basiccleaning/internal/artifact"
	"github.com/rentalpipeline/basiccleaning/internal/errhandling"
	"github.com/rentalpipeline/basiccleaning/internal/logger"
)

// seedJobType is recorded on runs created by "artifact put".
const seedJobType = "upload_artifact"

func newArtifactCmd(g *globalFlags) *cobra.Command {
	artifactCmd := &cobra.Command{
		Use:   "artifact",
		Short: "Manage artifacts in the configured store",
	}

	var (
		artifactType string
		description  string
	)
	putCmd := &cobra.Command{
		Use:   "put <name> <file>",
		Short: "Publish a local file as the next version of an artifact",
		Long: `Publish a local file as the next version of an artifact and wait until the
store confirms it. Use it to seed the raw dataset the cleaning stage reads.

Examples:
  basic-cleaning artifact put sample.csv ./sample.csv --type raw_data --description "Raw listings"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPut(cmd.Context(), cmd.OutOrStdout(), g, artifact.Artifact{
				Name:        args[0],
				Type:        artifactType,
				Description: description,
				Path:        args[1],
			})
		},
	}
	putCmd.Flags().StringVar(&artifactType, "type", "raw_data", "Type of the artifact")
	putCmd.Flags().StringVar(&description, "description", "", "Description of the artifact")

	showCmd := &cobra.Command{
		Use:   "show <ref>",
		Short: "Print the committed version a reference resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd.Context(), cmd.OutOrStdout(), g, args[0])
		},
	}

	artifactCmd.AddCommand(putCmd, showCmd)
	return artifactCmd
}

func runPut(ctx context.Context, out io.Writer, g *globalFlags, a artifact.Artifact) error {
	settings, err := loadSettings(g)
	if err != nil {
		return err
	}
	defer logger.CloseLogFile()

	store, err := openStore(ctx, settings)
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.StartRun(ctx, seedJobType, map[string]any{"name": a.Name, "path": a.Path, "type": a.Type})
	if err != nil {
		return fmt.Errorf("starting run: %w", err)
	}

	logger.Info("Uploading artifact", slog.String("artifact", a.Name), slog.String("path", a.Path))
	h, err := run.Publish(ctx, a)
	if err == nil {
		err = run.AwaitDurable(ctx, h)
	}
	if err != nil {
		err = errhandling.NewUploadError(errhandling.CodeUploadFailed, fmt.Sprintf("publishing %s", a.Name), err)
	}
	if ferr := run.Finish(context.WithoutCancel(ctx), err); ferr != nil {
		logger.Warn("failed to record run status", slog.String("run_id", run.ID()), slog.String("error", ferr.Error()))
	}
	if err != nil {
		return err
	}

	logger.Info("Artifact uploaded", slog.String("artifact", h.String()), slog.String("sha256", h.SHA256))
	if !g.quiet {
		fmt.Fprintf(out, "✓ Published %s (%d bytes, sha256 %s)\n", h, h.Size, h.SHA256)
	}
	return nil
}

func runShow(ctx context.Context, out io.Writer, g *globalFlags, ref string) error {
	parsed, err := artifact.ParseRef(ref)
	if err != nil {
		return errhandling.NewArgumentError("invalid artifact reference", err)
	}
	settings, err := loadSettings(g)
	if err != nil {
		return err
	}
	defer logger.CloseLogFile()

	store, err := openStore(ctx, settings)
	if err != nil {
		return err
	}
	defer store.Close()

	v, err := store.Registry().Resolve(ctx, settings.Project, parsed)
	if err != nil {
		return errhandling.NewDownloadError(fmt.Sprintf("resolving %s", ref), err)
	}
	fmt.Fprintf(out, "%s\n", v.Ref())
	fmt.Fprintf(out, "  Type: %s\n", v.Type)
	if v.Description != "" {
		fmt.Fprintf(out, "  Description: %s\n", v.Description)
	}
	fmt.Fprintf(out, "  File: %s\n", v.FileName)
	fmt.Fprintf(out, "  Size: %d\n", v.Size)
	fmt.Fprintf(out, "  SHA256: %s\n", v.SHA256)
	if g.verbose {
		fmt.Fprintf(out, "  Key: %s\n", v.BlobKey)
		fmt.Fprintf(out, "  Committed: %s\n", v.CommittedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	return nil
}
