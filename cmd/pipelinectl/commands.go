package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	importdomain "github.com/smallbiznis/pipelineintel/internal/importer/domain"
	tracedomain "github.com/smallbiznis/pipelineintel/internal/traceability/domain"
	"github.com/spf13/cobra"
)

type importOptions struct {
	entity    string
	file      string
	decisions string
	apply     bool
}

func newImportCmd(global *globalOptions) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Analyze a JSON file and optionally commit it",
		Long: `Analyze a JSON import file and print the resolution state.

Without --entity the file must be a bundle object keyed by entity type.
--decisions applies a resolve step before anything is written and --apply
finalizes the state in the same run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), global, func(ctx context.Context, svc services) error {
				return runImport(ctx, cmd, svc, opts)
			})
		},
	}

	cmd.Flags().StringVar(&opts.entity, "entity", "", "Entity type of the file (empty for a bundle)")
	cmd.Flags().StringVar(&opts.file, "file", "", "JSON file to import (required)")
	cmd.Flags().StringVar(&opts.decisions, "decisions", "", "JSON file with resolutions and action overrides")
	cmd.Flags().BoolVar(&opts.apply, "apply", false, "Finalize the analyzed state (default is dry-run)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runImport(ctx context.Context, cmd *cobra.Command, svc services, opts importOptions) error {
	data, err := os.ReadFile(opts.file)
	if err != nil {
		return err
	}
	req, err := importdomain.ParseImport(data, importdomain.EntityType(strings.TrimSpace(opts.entity)))
	if err != nil {
		return err
	}

	st, err := svc.Import.Analyze(ctx, req)
	if err != nil {
		return err
	}

	if opts.decisions != "" {
		raw, err := os.ReadFile(opts.decisions)
		if err != nil {
			return err
		}
		var decisions importdomain.Decisions
		if err := json.Unmarshal(raw, &decisions); err != nil {
			return fmt.Errorf("decode decisions: %w", err)
		}
		st, err = svc.Import.Resolve(ctx, importdomain.ResolveRequest{StateID: st.ID, Decisions: decisions})
		if err != nil {
			return err
		}
	}

	if !opts.apply {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"state_id": st.ID,
			"summary":  st.Summary(),
			"entries":  st.Entries,
			"missing":  st.MissingKeys,
		})
	}

	report, err := svc.Import.Finalize(ctx, importdomain.FinalizeRequest{StateID: st.ID})
	if err != nil {
		return err
	}
	if err := printJSON(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if !report.Success {
		return errors.New("import aborted")
	}
	return nil
}

func newFinalizeCmd(global *globalOptions) *cobra.Command {
	var stateID string

	cmd := &cobra.Command{
		Use:   "finalize",
		Short: "Commit a stored resolution state (requires REDIS_ADDR)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), global, func(ctx context.Context, svc services) error {
				report, err := svc.Import.Finalize(ctx, importdomain.FinalizeRequest{StateID: stateID})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().StringVar(&stateID, "state", "", "Resolution state id (required)")
	_ = cmd.MarkFlagRequired("state")
	return cmd
}

func newBackupCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export or restore a whole-database backup",
	}

	var out string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write every catalog table to a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), global, func(ctx context.Context, svc services) error {
				backup, err := svc.Import.ExportBackup(ctx)
				if err != nil {
					return err
				}
				if out == "" {
					return printJSON(cmd.OutOrStdout(), backup)
				}
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				return printJSON(f, backup)
			})
		},
	}
	exportCmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")

	var in string
	restoreCmd := &cobra.Command{
		Use:   "restore",
		Short: "Replace the catalog with the content of a backup file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(in)
			if err != nil {
				return err
			}
			var backup importdomain.Backup
			if err := json.Unmarshal(data, &backup); err != nil {
				return err
			}
			return withServices(cmd.Context(), global, func(ctx context.Context, svc services) error {
				result, err := svc.Import.RestoreBackup(ctx, &backup)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	restoreCmd.Flags().StringVarP(&in, "file", "f", "", "Backup file (required)")
	_ = restoreCmd.MarkFlagRequired("file")

	cmd.AddCommand(exportCmd, restoreCmd)
	return cmd
}

func newExportCmd(global *globalOptions) *cobra.Command {
	var req importdomain.ExportRequest

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export one entity slice as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), global, func(ctx context.Context, svc services) error {
				result, err := svc.Import.Export(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result.Items)
			})
		},
	}
	cmd.Flags().StringVar(&req.Entity, "entity", "", "Entity type (required)")
	cmd.Flags().StringSliceVar(&req.Fields, "fields", nil, "Fields to keep")
	cmd.Flags().Int64SliceVar(&req.IDs, "ids", nil, "Row ids to keep")
	_ = cmd.MarkFlagRequired("entity")
	return cmd
}

func newTraceCmd(global *globalOptions) *cobra.Command {
	var req tracedomain.TraceRequest
	var productID int64

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Print the challenge traceability tree of a template",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), global, func(ctx context.Context, svc services) error {
				if productID > 0 {
					effective, err := svc.Trace.EffectiveChallenges(ctx, productID)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), effective)
				}
				if req.ModalityID <= 0 || req.TemplateID <= 0 {
					return errors.New("--modality-id and --template-id are required")
				}
				trace, err := svc.Trace.Trace(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), trace)
			})
		},
	}
	cmd.Flags().Int64Var(&req.ModalityID, "modality-id", 0, "Modality id")
	cmd.Flags().Int64Var(&req.TemplateID, "template-id", 0, "Process template id")
	cmd.Flags().Int64Var(&req.ChallengeID, "challenge-id", 0, "Keep only branches leading to this challenge")
	cmd.Flags().Int64Var(&productID, "product-id", 0, "Print the effective challenges of a product instead")
	return cmd
}
