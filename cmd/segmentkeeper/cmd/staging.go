package cmd

import (
	"bytes"
	"fmt"
	"os"
	"strconv"

	"github.com/solatis/segmentkeeper/internal/staging"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the rule instances of a group into a zip bundle",
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a zip bundle of rule instances into a group",
	RunE:  runImport,
}

var (
	stagingCompanyID int64
	stagingGroupID   int64
	stagingUserID    int64
	exportOut        string
	importIn         string
	importSegmentMap map[string]int64
)

func init() {
	for _, c := range []*cobra.Command{exportCmd, importCmd} {
		c.Flags().Int64Var(&stagingCompanyID, "company", 0, "company id")
		c.Flags().Int64Var(&stagingGroupID, "group", 0, "group id")
		c.Flags().Int64Var(&stagingUserID, "user-id", 0, "id of the user running the job")
		c.MarkFlagRequired("company")
		c.MarkFlagRequired("group")
	}
	exportCmd.Flags().StringVar(&exportOut, "out", "", "bundle file to write")
	exportCmd.MarkFlagRequired("out")
	importCmd.Flags().StringVar(&importIn, "in", "", "bundle file to read")
	importCmd.Flags().StringToInt64Var(&importSegmentMap, "segment-map", nil,
		"source=target user segment ids (e.g. 3=33,4=34)")
	importCmd.MarkFlagRequired("in")

	rootCmd.AddCommand(exportCmd, importCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd, nil)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	a, err := newApp(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	handler := staging.NewHandler(a.instances, a.registry, staging.NewDBUserResolver(a.queries), logger)
	sc := staging.NewContext(stagingCompanyID, stagingGroupID, stagingUserID, staging.NewBundle(), logger)

	paths, err := handler.ExportGroup(ctx, sc, stagingGroupID)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := sc.Bundle().WriteZip(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(exportOut, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write bundle: %w", err)
	}

	reportWarnings(cmd, sc)
	fmt.Fprintf(cmd.OutOrStdout(), "exported %d rule instances to %s\n", len(paths), exportOut)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd, nil)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	data, err := os.ReadFile(importIn)
	if err != nil {
		return fmt.Errorf("failed to read bundle: %w", err)
	}
	bundle, err := staging.ReadZip(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	handler := staging.NewHandler(a.instances, a.registry, staging.NewDBUserResolver(a.queries), logger)
	sc := staging.NewContext(stagingCompanyID, stagingGroupID, stagingUserID, bundle, logger)
	for src, dest := range importSegmentMap {
		id, err := strconv.ParseInt(src, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid --segment-map key %q: %w", src, err)
		}
		sc.Mapping().Put(staging.ClassNameUserSegment, id, dest)
	}

	imported, err := handler.ImportAll(ctx, sc)
	if err != nil {
		return err
	}

	reportWarnings(cmd, sc)
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d rule instances into group %d\n", len(imported), stagingGroupID)
	return nil
}

func reportWarnings(cmd *cobra.Command, sc *staging.Context) {
	for _, w := range sc.Warnings() {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s %s: unresolved reference %q in rule instance %s\n",
			w.Direction, w.RuleKey, w.Reference, w.RuleInstanceUUID)
	}
}
