package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
)

// call runs one request and prints the response.
func call(cmd *cobra.Command, opts *globalOptions, method, path string, body interface{}) error {
	c, err := newClient(opts)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	raw, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), raw)
}

func accountPath(accountID, suffix string) string {
	return "/accounts/" + url.PathEscape(accountID) + suffix
}

func newDeploymentCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deployment ACCOUNT_ID",
		Short: "Show the live deployment of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, opts, http.MethodGet, accountPath(args[0], "/deployment"), nil)
		},
	}
}

func newHistoryCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history ACCOUNT_ID",
		Short: "Show the transition history of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, opts, http.MethodGet, accountPath(args[0], "/history"), nil)
		},
	}
}

func newProvisionCommand(opts *globalOptions) *cobra.Command {
	var templateID string
	cmd := &cobra.Command{
		Use:   "provision ACCOUNT_ID",
		Short: "Provision a squad for an account",
		Long:  `Provision a squad for an account. Without --template the effective template is used.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body interface{}
			if templateID != "" {
				body = map[string]string{"template_id": templateID}
			}
			return call(cmd, opts, http.MethodPost, accountPath(args[0], "/provision"), body)
		},
	}
	cmd.Flags().StringVarP(&templateID, "template", "t", "", "Template id to provision")
	return cmd
}

func newUpgradeCommand(opts *globalOptions) *cobra.Command {
	var templateID string
	cmd := &cobra.Command{
		Use:   "upgrade ACCOUNT_ID",
		Short: "Swap an account onto a template version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, opts, http.MethodPost, accountPath(args[0], "/upgrade"),
				map[string]string{"template_id": templateID})
		},
	}
	cmd.Flags().StringVarP(&templateID, "template", "t", "", "Target template id (required)")
	_ = cmd.MarkFlagRequired("template")
	return cmd
}

type planBody struct {
	TemplateID  string   `json:"template_id"`
	AccountIDs  []string `json:"account_ids,omitempty"`
	FromVersion string   `json:"from_version,omitempty"`
	Force       bool     `json:"force"`
	DryRun      bool     `json:"dry_run"`
	Async       bool     `json:"async"`
}

func newPlanCommand(opts *globalOptions) *cobra.Command {
	var body planBody
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan or run a bulk upgrade",
		Long: `Plan a bulk upgrade onto a template. Use --dry-run to preview without
swapping, or --async to hand the run to the background job queue.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if body.DryRun && body.Async {
				return fmt.Errorf("--dry-run and --async cannot be combined")
			}
			return call(cmd, opts, http.MethodPost, "/upgrades/plan", body)
		},
	}
	cmd.Flags().StringVarP(&body.TemplateID, "template", "t", "", "Target template id (required)")
	cmd.Flags().StringSliceVarP(&body.AccountIDs, "accounts", "a", nil, "Restrict to these account ids")
	cmd.Flags().StringVar(&body.FromVersion, "from-version", "", "Only accounts currently on this version")
	cmd.Flags().BoolVar(&body.Force, "force", false, "Also swap accounts already on the target")
	cmd.Flags().BoolVar(&body.DryRun, "dry-run", false, "Preview without swapping")
	cmd.Flags().BoolVar(&body.Async, "async", false, "Run as a background job")
	_ = cmd.MarkFlagRequired("template")
	return cmd
}

type rollbackBody struct {
	AccountIDs []string `json:"account_ids"`
	TemplateID string   `json:"template_id,omitempty"`
	UseBuiltIn bool     `json:"use_built_in"`
}

func newRollbackCommand(opts *globalOptions) *cobra.Command {
	var body rollbackBody
	cmd := &cobra.Command{
		Use:   "rollback ACCOUNT_ID...",
		Short: "Roll accounts back to their previous template",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body.AccountIDs = args
			return call(cmd, opts, http.MethodPost, "/rollbacks", body)
		},
	}
	cmd.Flags().StringVarP(&body.TemplateID, "template", "t", "", "Explicit rollback target")
	cmd.Flags().BoolVar(&body.UseBuiltIn, "built-in", false, "Roll back to the built-in default")
	return cmd
}

func newReconcileCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Report drift between deployments and provider resources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return call(cmd, opts, http.MethodGet, "/reconcile", nil)
		},
	}
}

func newTemplatesCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Inspect squad templates",
	}

	var includeInactive bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := "/templates"
			if includeInactive {
				path += "?include_inactive=true"
			}
			return call(cmd, opts, http.MethodGet, path, nil)
		},
	}
	list.Flags().BoolVar(&includeInactive, "all", false, "Include inactive templates")

	compare := &cobra.Command{
		Use:   "compare FROM_ID TO_ID",
		Short: "Show the migration report between two templates",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{"from": {args[0]}, "to": {args[1]}}
			return call(cmd, opts, http.MethodGet, "/templates/compare?"+q.Encode(), nil)
		},
	}

	cmd.AddCommand(list, compare)
	return cmd
}
