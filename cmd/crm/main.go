package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"crmline/internal/activity"
	"crmline/internal/api"
	"crmline/internal/config"
	"crmline/internal/db"
	"crmline/internal/domain"
	"crmline/internal/migrate"
	"crmline/internal/repo"
	"crmline/internal/rules"
	"crmline/internal/server"
	"crmline/internal/workflow"
)

var rootCmd = &cobra.Command{
	Use:   "crm",
	Short: "CRM campaign CLI",
	Long: `crm drives customer segmentation and campaign dispatch from the terminal.
- Workspace: a .crm directory holding the local database; drafts survive between invocations.
- Segment rules: named predicates over customer attributes (spend, visits, inactivity, location, orders) combined with AND/OR.
- Campaigns: a message sent once to the customers a segment resolves, with per-recipient selection and AI-suggested copy.
- Stats: delivery aggregates per campaign, resolved against the loaded history.
Run 'crm demo' to start a self-contained backend for trying things out.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CRM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Bool("yes", false, "confirm destructive operations")
	rootCmd.PersistentFlags().String("base-url", "", "backend base URL (overrides crm.yml)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("yes", rootCmd.PersistentFlags().Lookup("yes"))
	_ = viper.BindPFlag("base-url", rootCmd.PersistentFlags().Lookup("base-url"))
}

func registerCommands() {
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(segmentCmd())
	rootCmd.AddCommand(campaignCmd())
	rootCmd.AddCommand(customerCmd())
	rootCmd.AddCommand(orderCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(demoCmd())
}

// env bundles everything a command needs: persistence, config, and a
// backend client built from the stored session.
type env struct {
	Repo     repo.Repo
	Activity activity.Writer
	Config   *config.Config
	Client   *api.Client
}

func withEnv(ctx context.Context, fn func(context.Context, env) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	baseURL := cfg.API.BaseURL
	if override := viper.GetString("base-url"); override != "" {
		baseURL = override
	}
	r := repo.Repo{DB: conn}
	session, err := r.GetSession(ctx)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	return fn(ctx, env{
		Repo:     r,
		Activity: activity.Writer{DB: conn},
		Config:   cfg,
		Client:   api.New(baseURL, session),
	})
}

func requireSession(e env) error {
	if e.Client.Session.Token == "" {
		return fmt.Errorf("not logged in; run 'crm login' first")
	}
	return nil
}

func loginCmd() *cobra.Command {
	var credential string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate against the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			if credential == "" {
				return fmt.Errorf("--credential required")
			}
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				session, err := e.Client.Login(ctx, credential)
				if err != nil {
					return err
				}
				if err := e.Repo.SaveSession(ctx, session); err != nil {
					return err
				}
				_ = e.Activity.Append(ctx, "auth.login", session.User.Email, "")
				return printJSONOrTable(session.User)
			})
		},
	}
	cmd.Flags().StringVar(&credential, "credential", "", "identity credential")
	_ = cmd.MarkFlagRequired("credential")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				if err := e.Repo.ClearSession(ctx); err != nil {
					return err
				}
				_ = e.Activity.Append(ctx, "auth.logout", "", "")
				fmt.Println("logged out")
				return nil
			})
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session and workspace state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				out := map[string]any{
					"backend":   e.Client.BaseURL,
					"logged_in": e.Client.Session.Token != "",
				}
				if e.Client.Session.Token != "" {
					out["user"] = e.Client.Session.User
				}
				draft, err := e.Repo.GetRuleDraft(ctx)
				if err == nil {
					out["rule_draft"] = map[string]any{"name": draft.Name, "conditions": len(draft.Conditions)}
				}
				state, err := e.Repo.GetCampaignDraft(ctx)
				if err == nil {
					out["campaign_draft"] = map[string]any{"name": state.Name, "phase": state.Phase}
				}
				return printJSONOrTable(out)
			})
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Inspect workspace config"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				return printJSONOrTable(e.Config)
			})
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default crm.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(config.Default().API.BaseURL)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	return cfg
}

func segmentCmd() *cobra.Command {
	seg := &cobra.Command{
		Use:   "segment",
		Short: "Build and manage segment rules",
		Long:  "A segment rule names a set of customers: conditions over spend, visits, inactivity, location, and order count, combined with AND or OR. Build the draft condition by condition, then submit it.",
	}
	seg.AddCommand(segmentFieldsCmd())
	seg.AddCommand(segmentNewCmd())
	seg.AddCommand(segmentCondCmd())
	seg.AddCommand(segmentShowCmd())
	seg.AddCommand(segmentSubmitCmd())
	seg.AddCommand(segmentListCmd())
	seg.AddCommand(segmentDeleteCmd())
	seg.AddCommand(segmentCustomersCmd())
	return seg
}

func segmentFieldsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fields",
		Short: "List filterable fields and their operators",
		RunE: func(cmd *cobra.Command, args []string) error {
			specs := rules.Catalog()
			if viper.GetBool("json") {
				return printJSON(specs)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Label", "Type", "Operators"})
			for _, f := range specs {
				tw.AppendRow(table.Row{f.ID, f.Label, f.Type, strings.Join(f.Operators, " ")})
			}
			tw.Render()
			return nil
		},
	}
}

func segmentNewCmd() *cobra.Command {
	var name, logic string
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Start a rule draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				d := rules.Draft{Name: name, LogicType: domain.LogicType(strings.ToUpper(logic))}
				if err := e.Repo.SaveRuleDraft(ctx, d); err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "rule name")
	cmd.Flags().StringVar(&logic, "logic", "AND", "condition combinator (AND or OR)")
	return cmd
}

func segmentCondCmd() *cobra.Command {
	cond := &cobra.Command{Use: "cond", Short: "Edit draft conditions"}
	cond.AddCommand(segmentCondAddCmd())
	cond.AddCommand(segmentCondSetCmd())
	cond.AddCommand(segmentCondRmCmd())
	return cond
}

func withRuleDraft(ctx context.Context, e env, fn func(*rules.Draft) error) error {
	d, err := e.Repo.GetRuleDraft(ctx)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("no rule draft; run 'crm segment new' first")
		}
		return err
	}
	if err := fn(&d); err != nil {
		return err
	}
	return e.Repo.SaveRuleDraft(ctx, d)
}

func segmentCondAddCmd() *cobra.Command {
	var field, operator, value string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Append a condition to the draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				return withRuleDraft(ctx, e, func(d *rules.Draft) error {
					id := d.AddCondition()
					if field != "" {
						if err := d.SetField(id, field); err != nil {
							return err
						}
					}
					if operator != "" {
						if err := d.SetOperator(id, operator); err != nil {
							return err
						}
					}
					if value != "" {
						if err := d.SetValue(id, value); err != nil {
							return err
						}
					}
					fmt.Println(id)
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&field, "field", "", "field id")
	cmd.Flags().StringVar(&operator, "operator", "", "operator")
	cmd.Flags().StringVar(&value, "value", "", "comparison value")
	return cmd
}

func segmentCondSetCmd() *cobra.Command {
	var field, operator, value string
	cmd := &cobra.Command{
		Use:   "set <condition-id>",
		Short: "Change a draft condition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				return withRuleDraft(ctx, e, func(d *rules.Draft) error {
					if cmd.Flags().Changed("field") {
						if err := d.SetField(id, field); err != nil {
							return err
						}
					}
					if cmd.Flags().Changed("operator") {
						if err := d.SetOperator(id, operator); err != nil {
							return err
						}
					}
					if cmd.Flags().Changed("value") {
						if err := d.SetValue(id, value); err != nil {
							return err
						}
					}
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&field, "field", "", "field id")
	cmd.Flags().StringVar(&operator, "operator", "", "operator")
	cmd.Flags().StringVar(&value, "value", "", "comparison value")
	return cmd
}

func segmentCondRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <condition-id>",
		Short: "Remove a draft condition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				return withRuleDraft(ctx, e, func(d *rules.Draft) error {
					d.RemoveCondition(id)
					return nil
				})
			})
		},
	}
}

func segmentShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the rule draft and its validity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				d, err := e.Repo.GetRuleDraft(ctx)
				if err != nil {
					if errors.Is(err, repo.ErrNotFound) {
						return fmt.Errorf("no rule draft; run 'crm segment new' first")
					}
					return err
				}
				validity := "valid"
				if err := d.Validate(); err != nil {
					validity = err.Error()
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"draft": d, "validity": validity})
				}
				fmt.Printf("Rule: %s (%s)\n", d.Name, d.LogicType)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Field", "Operator", "Value"})
				for _, c := range d.Conditions {
					tw.AppendRow(table.Row{c.LocalID, c.Field, c.Operator, c.Value})
				}
				tw.Render()
				fmt.Println("Validity:", validity)
				return nil
			})
		},
	}
}

func segmentSubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit",
		Short: "Persist the rule draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				if err := requireSession(e); err != nil {
					return err
				}
				d, err := e.Repo.GetRuleDraft(ctx)
				if err != nil {
					if errors.Is(err, repo.ErrNotFound) {
						return fmt.Errorf("no rule draft; run 'crm segment new' first")
					}
					return err
				}
				editor := workflow.NewRuleEditor(e.Client)
				editor.SetDraft(d)
				created, err := editor.Submit(ctx)
				if err != nil {
					return err
				}
				if err := e.Repo.ClearRuleDraft(ctx); err != nil {
					return err
				}
				_ = e.Activity.Append(ctx, "segment.created", created.Name, created.ID)
				return printJSONOrTable(created)
			})
		},
	}
}

func segmentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved segment rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				if err := requireSession(e); err != nil {
					return err
				}
				editor := workflow.NewRuleEditor(e.Client)
				if err := editor.Refresh(ctx); err != nil {
					return err
				}
				saved := editor.Saved()
				if viper.GetBool("json") {
					return printJSON(saved)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Logic", "Conditions", "Created"})
				for _, r := range saved {
					tw.AppendRow(table.Row{r.ID, r.Name, r.LogicType, len(r.Conditions), r.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func segmentDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved segment rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				if err := requireSession(e); err != nil {
					return err
				}
				editor := workflow.NewRuleEditor(e.Client)
				if err := editor.Refresh(ctx); err != nil {
					return err
				}
				if err := editor.Delete(ctx, id, viper.GetBool("yes")); err != nil {
					if errors.Is(err, workflow.ErrConfirmationRequired) {
						return fmt.Errorf("deletion is permanent; re-run with --yes to confirm")
					}
					return err
				}
				_ = e.Activity.Append(ctx, "segment.deleted", id, "")
				fmt.Println("deleted", id)
				return nil
			})
		},
	}
}

func segmentCustomersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "customers <id>",
		Short: "Resolve the customers a saved rule selects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				if err := requireSession(e); err != nil {
					return err
				}
				customers, err := e.Client.ListCustomersForSegment(ctx, id)
				if err != nil {
					return err
				}
				return printCustomers(customers, nil)
			})
		},
	}
}

func campaignCmd() *cobra.Command {
	camp := &cobra.Command{
		Use:   "campaign",
		Short: "Compose and dispatch campaigns",
		Long:  "Composition is a draft held in the workspace: pick a segment, adjust the recipient selection, write or adopt a message, then submit. Submission dispatches once; the history lists what was sent.",
	}
	camp.AddCommand(campaignSetCmd())
	camp.AddCommand(campaignSegmentCmd())
	camp.AddCommand(campaignCustomersCmd())
	camp.AddCommand(campaignToggleCmd())
	camp.AddCommand(campaignSelectAllCmd())
	camp.AddCommand(campaignSuggestCmd())
	camp.AddCommand(campaignAdoptCmd())
	camp.AddCommand(campaignShowCmd())
	camp.AddCommand(campaignSubmitCmd())
	camp.AddCommand(campaignResetCmd())
	camp.AddCommand(campaignListCmd())
	camp.AddCommand(campaignStatsCmd())
	return camp
}

func loadComposer(ctx context.Context, e env) (*workflow.Composer, error) {
	c := workflow.NewComposer(e.Client)
	state, err := e.Repo.GetCampaignDraft(ctx)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return c, nil
		}
		return nil, err
	}
	c.Restore(state)
	return c, nil
}

func saveComposer(ctx context.Context, e env, c *workflow.Composer) error {
	return e.Repo.SaveCampaignDraft(ctx, c.Snapshot())
}

func campaignSetCmd() *cobra.Command {
	var name, message, intent string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set campaign fields on the draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				c, err := loadComposer(ctx, e)
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("name") {
					c.SetName(name)
				}
				if cmd.Flags().Changed("message") {
					c.SetMessage(message)
				}
				if cmd.Flags().Changed("intent") {
					c.SetIntent(intent)
				}
				return saveComposer(ctx, e, c)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "campaign name")
	cmd.Flags().StringVar(&message, "message", "", "message text ({name} is substituted per recipient)")
	cmd.Flags().StringVar(&intent, "intent", "", "campaign intent for AI suggestions")
	return cmd
}

func campaignSegmentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "segment <rule-id>",
		Short: "Pick the target segment and resolve its customers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				if err := requireSession(e); err != nil {
					return err
				}
				c, err := loadComposer(ctx, e)
				if err != nil {
					return err
				}
				if err := c.SelectSegment(ctx, id); err != nil {
					// The cleared state is still persisted so the draft
					// matches what the operator saw.
					_ = saveComposer(ctx, e, c)
					return err
				}
				if err := saveComposer(ctx, e, c); err != nil {
					return err
				}
				fmt.Printf("%d customers in segment\n", len(c.Customers()))
				return nil
			})
		},
	}
}

func campaignCustomersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "customers",
		Short: "Show the resolved customers and selection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				c, err := loadComposer(ctx, e)
				if err != nil {
					return err
				}
				selected := map[string]bool{}
				for _, id := range c.SelectedIDs() {
					selected[id] = true
				}
				return printCustomers(c.Customers(), selected)
			})
		},
	}
}

func campaignToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <customer-id>",
		Short: "Flip one recipient's inclusion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				c, err := loadComposer(ctx, e)
				if err != nil {
					return err
				}
				if err := c.ToggleCustomer(id); err != nil {
					return err
				}
				return saveComposer(ctx, e, c)
			})
		},
	}
}

func campaignSelectAllCmd() *cobra.Command {
	var off bool
	cmd := &cobra.Command{
		Use:   "select-all",
		Short: "Select (or with --off, deselect) every resolved customer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				c, err := loadComposer(ctx, e)
				if err != nil {
					return err
				}
				c.SetSelectAll(!off)
				return saveComposer(ctx, e, c)
			})
		},
	}
	cmd.Flags().BoolVar(&off, "off", false, "deselect every customer")
	return cmd
}

func campaignSuggestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suggest",
		Short: "Generate AI message suggestions for the intent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				if err := requireSession(e); err != nil {
					return err
				}
				c, err := loadComposer(ctx, e)
				if err != nil {
					return err
				}
				if err := c.RequestSuggestions(ctx); err != nil {
					return err
				}
				if err := saveComposer(ctx, e, c); err != nil {
					return err
				}
				for i, s := range c.Suggestions() {
					fmt.Printf("[%d] %s\n", i, s)
				}
				return nil
			})
		},
	}
}

func campaignAdoptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "adopt <index>",
		Short: "Use a suggestion as the campaign message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("index must be a number")
			}
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				c, err := loadComposer(ctx, e)
				if err != nil {
					return err
				}
				if err := c.AdoptSuggestion(index); err != nil {
					return err
				}
				if err := saveComposer(ctx, e, c); err != nil {
					return err
				}
				fmt.Println(c.Message())
				return nil
			})
		},
	}
}

func campaignShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the campaign draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				c, err := loadComposer(ctx, e)
				if err != nil {
					return err
				}
				state := c.Snapshot()
				if viper.GetBool("json") {
					return printJSON(state)
				}
				fmt.Printf("Phase:    %s\n", state.Phase)
				fmt.Printf("Name:     %s\n", state.Name)
				fmt.Printf("Segment:  %s\n", state.SegmentRuleID)
				fmt.Printf("Intent:   %s\n", state.Intent)
				fmt.Printf("Message:  %s\n", state.Message)
				fmt.Printf("Audience: %d resolved, %d selected\n", len(state.Customers), len(state.SelectedIDs))
				return nil
			})
		},
	}
}

func campaignSubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit",
		Short: "Dispatch the campaign and show the refreshed history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				if err := requireSession(e); err != nil {
					return err
				}
				c, err := loadComposer(ctx, e)
				if err != nil {
					return err
				}
				created, err := c.Submit(ctx)
				if err != nil {
					_ = saveComposer(ctx, e, c)
					return err
				}
				if err := e.Repo.ClearCampaignDraft(ctx); err != nil {
					return err
				}
				_ = e.Activity.Append(ctx, "campaign.created", created.Name, created.ID)
				fmt.Println("dispatched", created.ID)

				// Give the backend a moment to register the send before
				// re-listing the history.
				time.Sleep(e.Config.HistoryDelay())
				viewer := workflow.NewStatsViewer(e.Client)
				if err := viewer.Refresh(ctx); err != nil {
					return err
				}
				return printCampaigns(viewer.Campaigns())
			})
		},
	}
}

func campaignResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Discard the campaign draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				return e.Repo.ClearCampaignDraft(ctx)
			})
		},
	}
}

func campaignListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List dispatched campaigns, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				if err := requireSession(e); err != nil {
					return err
				}
				viewer := workflow.NewStatsViewer(e.Client)
				if err := viewer.Refresh(ctx); err != nil {
					return err
				}
				return printCampaigns(viewer.Campaigns())
			})
		},
	}
}

func campaignStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <campaign-id>",
		Short: "Show delivery stats for a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				if err := requireSession(e); err != nil {
					return err
				}
				viewer := workflow.NewStatsViewer(e.Client)
				viewer.StatsTimeout = e.Config.StatsTimeout()
				if err := viewer.Refresh(ctx); err != nil {
					return err
				}
				stats, err := viewer.ViewStats(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stats)
				}
				fmt.Printf("Campaign: %s (%s)\n", stats.Name, stats.Status)
				fmt.Printf("Message:  %s\n", stats.Message)
				fmt.Printf("Sent:     %s\n", stats.CreatedAt)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Total", "Delivered", "Pending", "Failed"})
				tw.AppendRow(table.Row{stats.Total, stats.Delivered, stats.Pending, stats.Failed})
				tw.Render()
				if stats.Summary != "" {
					fmt.Println(stats.Summary)
				}
				return nil
			})
		},
	}
}

func customerCmd() *cobra.Command {
	cust := &cobra.Command{Use: "customer", Short: "Customer data"}
	cust.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List customers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				if err := requireSession(e); err != nil {
					return err
				}
				customers, err := e.Client.ListCustomers(ctx)
				if err != nil {
					return err
				}
				return printCustomers(customers, nil)
			})
		},
	})
	cust.AddCommand(customerImportCmd())
	return cust
}

func customerImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Bulk-import customers from CSV",
		Long:  "Columns: name, email, phone, location, spend, visits, inactiveDays, orders. The first row is the header.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			customers, err := readCustomersCSV(args[0])
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				if err := requireSession(e); err != nil {
					return err
				}
				if err := e.Client.BulkImportCustomers(ctx, customers); err != nil {
					return err
				}
				_ = e.Activity.Append(ctx, "customers.imported", args[0], fmt.Sprintf("%d rows", len(customers)))
				fmt.Printf("imported %d customers\n", len(customers))
				return nil
			})
		},
	}
}

func orderCmd() *cobra.Command {
	ord := &cobra.Command{Use: "order", Short: "Order data"}
	ord.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				if err := requireSession(e); err != nil {
					return err
				}
				orders, err := e.Client.ListOrders(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(orders)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Customer", "Amount", "Date"})
				for _, o := range orders {
					tw.AppendRow(table.Row{o.ID, o.CustomerEmail, o.Amount, o.Date})
				}
				tw.Render()
				return nil
			})
		},
	})
	ord.AddCommand(orderImportCmd())
	return ord
}

func orderImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Bulk-import orders from CSV",
		Long:  "Columns: customerEmail, amount, date. The first row is the header.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orders, err := readOrdersCSV(args[0])
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				if err := requireSession(e); err != nil {
					return err
				}
				if err := e.Client.BulkImportOrders(ctx, orders); err != nil {
					return err
				}
				_ = e.Activity.Append(ctx, "orders.imported", args[0], fmt.Sprintf("%d rows", len(orders)))
				fmt.Printf("imported %d orders\n", len(orders))
				return nil
			})
		},
	}
}

func activityCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show recent workspace activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e env) error {
				entries, err := e.Activity.Recent(ctx, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(entries)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	return cmd
}

func demoCmd() *cobra.Command {
	var addr, secret string
	var seed bool
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a self-contained CRM backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.New(os.Stderr, "crm-demo ", log.LstdFlags)
			handler, err := server.New(server.Config{JWTSecret: secret, Logger: logger, Seed: seed})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving CRM API on http://%s (login with any email as the credential)\n", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8976", "listen address")
	cmd.Flags().StringVar(&secret, "jwt-secret", "crm-demo-secret", "token signing secret")
	cmd.Flags().BoolVar(&seed, "seed", true, "seed demo customers and orders")
	return cmd
}

// --- helpers ---

func printCustomers(customers []domain.Customer, selected map[string]bool) error {
	if viper.GetBool("json") {
		return printJSON(customers)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	header := table.Row{"ID", "Name", "Email", "Location", "Spend", "Visits", "Inactive", "Orders"}
	if selected != nil {
		header = append(table.Row{"Sel"}, header...)
	}
	tw.AppendHeader(header)
	for _, c := range customers {
		row := table.Row{c.ID, c.Name, c.Email, c.Location, c.Spend, c.Visits, c.InactiveDays, c.Orders}
		if selected != nil {
			mark := ""
			if selected[c.ID] {
				mark = "x"
			}
			row = append(table.Row{mark}, row...)
		}
		tw.AppendRow(row)
	}
	tw.Render()
	return nil
}

func printCampaigns(campaigns []domain.Campaign) error {
	if viper.GetBool("json") {
		return printJSON(campaigns)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Name", "Segment", "Status", "Recipients", "Created"})
	for _, c := range campaigns {
		segment := c.SegmentName
		if segment == "" {
			segment = c.SegmentRule.Name
		}
		if segment == "" {
			segment = c.SegmentRule.ID
		}
		tw.AppendRow(table.Row{c.ID, c.Name, segment, c.Status, len(c.CustomerIDs), c.CreatedAt})
	}
	tw.Render()
	return nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readCustomersCSV(path string) ([]domain.Customer, error) {
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	col := columnIndex(header)
	var customers []domain.Customer
	for i, row := range rows {
		c := domain.Customer{
			Name:     col.get(row, "name"),
			Email:    col.get(row, "email"),
			Phone:    col.get(row, "phone"),
			Location: col.get(row, "location"),
		}
		if c.Name == "" && c.Email == "" {
			return nil, fmt.Errorf("row %d: name or email required", i+2)
		}
		if v := col.get(row, "spend"); v != "" {
			if c.Spend, err = strconv.ParseFloat(v, 64); err != nil {
				return nil, fmt.Errorf("row %d: invalid spend %q", i+2, v)
			}
		}
		if v := col.get(row, "visits"); v != "" {
			if c.Visits, err = strconv.Atoi(v); err != nil {
				return nil, fmt.Errorf("row %d: invalid visits %q", i+2, v)
			}
		}
		if v := col.get(row, "inactivedays"); v != "" {
			if c.InactiveDays, err = strconv.Atoi(v); err != nil {
				return nil, fmt.Errorf("row %d: invalid inactiveDays %q", i+2, v)
			}
		}
		if v := col.get(row, "orders"); v != "" {
			if c.Orders, err = strconv.Atoi(v); err != nil {
				return nil, fmt.Errorf("row %d: invalid orders %q", i+2, v)
			}
		}
		customers = append(customers, c)
	}
	return customers, nil
}

func readOrdersCSV(path string) ([]domain.Order, error) {
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	col := columnIndex(header)
	var orders []domain.Order
	for i, row := range rows {
		o := domain.Order{
			CustomerEmail: col.get(row, "customeremail"),
			Date:          col.get(row, "date"),
		}
		if o.CustomerEmail == "" {
			return nil, fmt.Errorf("row %d: customerEmail required", i+2)
		}
		if v := col.get(row, "amount"); v != "" {
			if o.Amount, err = strconv.ParseFloat(v, 64); err != nil {
				return nil, fmt.Errorf("row %d: invalid amount %q", i+2, v)
			}
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func readCSV(path string) ([][]string, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, fmt.Errorf("%s is empty", path)
		}
		return nil, nil, err
	}
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	return rows, header, nil
}

type columns map[string]int

func columnIndex(header []string) columns {
	col := columns{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return col
}

func (c columns) get(row []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
