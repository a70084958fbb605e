package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/cascade-rentals/opsdash/internal/model"
	"github.com/cascade-rentals/opsdash/internal/reconcile"
)

var (
	reconcileDomain   string
	reconcileStart    string
	reconcileEnd      string
	reconcileLocation string
	reconcileCategory string
	reconcileAssess   bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run a reconciliation and print the report as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("reconcile"); err != nil {
			return err
		}

		scope, err := flagScope()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		engine, err := buildEngine(st)
		if err != nil {
			return err
		}

		domain, err := model.ParseDomain(reconcileDomain)
		if err != nil {
			return err
		}

		var out any
		switch {
		case reconcileAssess:
			composite, err := engine.Comprehensive(ctx, scope)
			if err != nil {
				return err
			}
			var reports []*model.ReconciliationReport
			for _, d := range []model.Domain{model.DomainRevenue, model.DomainUtilization, model.DomainInventory} {
				if section, ok := composite.Domains[d]; ok && section.Report != nil {
					reports = append(reports, section.Report)
				}
			}
			out = struct {
				model.HealthAssessment
				Period model.Scope `json:"period"`
			}{reconcile.Assess(reports), scope}
		case domain == model.DomainComprehensive:
			out, err = engine.Comprehensive(ctx, scope)
			if err != nil {
				return err
			}
		default:
			out, err = engine.Reconcile(ctx, domain, scope)
			if err != nil {
				return err
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

// flagScope builds the reporting scope from command-line flags.
func flagScope() (model.Scope, error) {
	start, err := parseDateFlag(reconcileStart)
	if err != nil {
		return model.Scope{}, eris.Wrap(err, "invalid --start")
	}
	end, err := parseDateFlag(reconcileEnd)
	if err != nil {
		return model.Scope{}, eris.Wrap(err, "invalid --end")
	}

	scope := model.Scope{
		Start:        start,
		End:          end,
		LocationCode: reconcileLocation,
		Category:     reconcileCategory,
	}
	if err := scope.Validate(); err != nil {
		return model.Scope{}, err
	}
	return scope, nil
}

func parseDateFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", s, time.UTC)
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileDomain, "domain", "comprehensive", "domain to reconcile: revenue, utilization, inventory, comprehensive")
	reconcileCmd.Flags().StringVar(&reconcileStart, "start", "", "period start, YYYY-MM-DD or RFC 3339 (required)")
	reconcileCmd.Flags().StringVar(&reconcileEnd, "end", "", "period end, exclusive (required)")
	reconcileCmd.Flags().StringVar(&reconcileLocation, "location", "", "restrict to one location code")
	reconcileCmd.Flags().StringVar(&reconcileCategory, "category", "", "restrict to one equipment category")
	reconcileCmd.Flags().BoolVar(&reconcileAssess, "assess", false, "print the operational health assessment instead of raw reports")
	_ = reconcileCmd.MarkFlagRequired("start")
	_ = reconcileCmd.MarkFlagRequired("end")
	rootCmd.AddCommand(reconcileCmd)
}
