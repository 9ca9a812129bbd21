package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reportmitra.org/internal/lifecycle"
	"reportmitra.org/internal/rbac"
	"reportmitra.org/internal/upstream"
)

var version = "0.3.1"

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "rm-tokens.json")
	}
	return filepath.Join(dir, "reportmitra", "tokens.json")
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func printJSON(v any) {
	p, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(p))
}

func main() {
	var (
		baseURL   = envOr("RM_UPSTREAM_URL", "http://localhost:8000")
		tokenFile = envOr("RM_TOKEN_FILE", defaultTokenFile())
	)

	newClient := func() (*upstream.Client, error) {
		store, err := upstream.NewFileStore(tokenFile)
		if err != nil {
			return nil, fmt.Errorf("token file: %w", err)
		}
		return upstream.New(baseURL, store,
			upstream.WithHTTPClient(&http.Client{Timeout: 30 * time.Second})), nil
	}

	// requireAuth builds a client and refuses to proceed without a stored
	// credential. Staleness is still discovered on the wire; this only catches
	// the never-logged-in case before any request is made.
	requireAuth := func() (*upstream.Client, error) {
		cl, err := newClient()
		if err != nil {
			return nil, err
		}
		if cl.Tokens().Access() == "" && cl.Tokens().Refresh() == "" {
			return nil, fmt.Errorf("not logged in; run 'adminctl login' first")
		}
		return cl, nil
	}

	// requireRoot additionally checks the current account's privileges, so a
	// non-root operator gets a clear local error instead of a backend 403. The
	// backend enforces the same rule regardless.
	requireRoot := func(ctx context.Context, feature rbac.Feature) (*upstream.Client, error) {
		cl, err := requireAuth()
		if err != nil {
			return nil, err
		}
		me, err := cl.Me(ctx)
		if err != nil {
			return nil, err
		}
		if !rbac.CanAccess(feature, me) {
			return nil, fmt.Errorf("access denied: this action needs a root account")
		}
		return cl, nil
	}

	root := &cobra.Command{
		Use:           "adminctl",
		Short:         "ReportMitra administration CLI",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&baseURL, "base-url", baseURL, "backend base URL (env RM_UPSTREAM_URL)")
	root.PersistentFlags().StringVar(&tokenFile, "token-file", tokenFile, "token storage path (env RM_TOKEN_FILE)")

	// login / logout
	var loginUserID, loginPassword string
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and store the token pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			if loginUserID == "" {
				return fmt.Errorf("--userid is required")
			}
			if loginPassword == "" {
				loginPassword = os.Getenv("RM_PASSWORD")
			}
			if loginPassword == "" {
				return fmt.Errorf("--password or env RM_PASSWORD is required")
			}
			cl, err := newClient()
			if err != nil {
				return err
			}
			if _, err := cl.Login(cmd.Context(), loginUserID, loginPassword); err != nil {
				if verr, ok := upstream.AsValidation(err); ok {
					return fmt.Errorf("login failed: %s", verr.Message())
				}
				return fmt.Errorf("login failed: %w", err)
			}
			fmt.Printf("logged in as %s (tokens stored in %s)\n", loginUserID, tokenFile)
			return nil
		},
	}
	loginCmd.Flags().StringVar(&loginUserID, "userid", "", "6-character account identifier")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "password (prefer env RM_PASSWORD)")

	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "Discard the stored token pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := newClient()
			if err != nil {
				return err
			}
			cl.Logout()
			fmt.Println("logged out")
			return nil
		},
	}

	meCmd := &cobra.Command{
		Use:   "me",
		Short: "Show the authenticated account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := requireAuth()
			if err != nil {
				return err
			}
			me, err := cl.Me(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(me)
			return nil
		},
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Probe backend availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := newClient()
			if err != nil {
				return err
			}
			if err := cl.Health(cmd.Context()); err != nil {
				return fmt.Errorf("backend is down: %w", err)
			}
			fmt.Println("backend is up")
			return nil
		},
	}

	// issues
	issuesCmd := &cobra.Command{Use: "issues", Short: "Issue lifecycle operations"}

	var (
		listStatus string
		listUrgent bool
	)
	issuesListCmd := &cobra.Command{
		Use:   "list",
		Short: "List issues (default: pending and in_progress)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listStatus != "" && !lifecycle.Known(lifecycle.Status(listStatus)) {
				return fmt.Errorf("unknown status %q", listStatus)
			}
			cl, err := requireAuth()
			if err != nil {
				return err
			}
			issues, err := cl.ListIssues(cmd.Context(), listStatus)
			if err != nil {
				return err
			}
			if listUrgent {
				sort.SliceStable(issues, func(i, j int) bool {
					return issues[i].ConfidenceScore > issues[j].ConfidenceScore
				})
			}
			printJSON(issues)
			return nil
		},
	}
	issuesListCmd.Flags().StringVar(&listStatus, "status", "", "filter: pending|in_progress|escalated|resolved")
	issuesListCmd.Flags().BoolVar(&listUrgent, "urgent", false, "order by confidence score, highest first")

	issuesShowCmd := &cobra.Command{
		Use:   "show <tracking-id>",
		Short: "Show one issue with presigned image URLs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := requireAuth()
			if err != nil {
				return err
			}
			issue, err := cl.GetIssue(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJSON(issue)
			return nil
		},
	}

	transition := func(ctx context.Context, trackingID string, to lifecycle.Status) (upstream.StatusUpdate, error) {
		cl, err := requireAuth()
		if err != nil {
			return upstream.StatusUpdate{}, err
		}
		issue, err := cl.GetIssue(ctx, trackingID)
		if err != nil {
			return upstream.StatusUpdate{}, err
		}
		if err := lifecycle.CheckTransition(lifecycle.Status(issue.Status), to); err != nil {
			return upstream.StatusUpdate{}, err
		}
		return cl.UpdateIssueStatus(ctx, trackingID, string(to))
	}

	issuesStartCmd := &cobra.Command{
		Use:   "start <tracking-id>",
		Short: "Move a pending issue to in_progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upd, err := transition(cmd.Context(), args[0], lifecycle.StatusInProgress)
			if err != nil {
				return err
			}
			printJSON(upd)
			return nil
		},
	}

	issuesEscalateCmd := &cobra.Command{
		Use:   "escalate <tracking-id>",
		Short: "Escalate an in_progress issue to a higher authority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upd, err := transition(cmd.Context(), args[0], lifecycle.StatusEscalated)
			if err != nil {
				return err
			}
			printJSON(upd)
			if lifecycle.Handoff(lifecycle.StatusEscalated) && upd.AllocatedTo != "" {
				fmt.Printf("issue handed off to %s\n", upd.AllocatedTo)
			}
			return nil
		},
	}

	var resolveImage string
	issuesResolveCmd := &cobra.Command{
		Use:   "resolve <tracking-id>",
		Short: "Resolve an issue with a completion image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if resolveImage == "" {
				return fmt.Errorf("--image is required")
			}
			f, err := os.Open(resolveImage)
			if err != nil {
				return err
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return err
			}
			contentType := mime.TypeByExtension(filepath.Ext(resolveImage))
			if contentType == "" {
				head := make([]byte, 512)
				n, _ := f.Read(head)
				contentType = http.DetectContentType(head[:n])
				if _, err := f.Seek(0, io.SeekStart); err != nil {
					return err
				}
			}
			if err := lifecycle.ValidateCompletionImage(contentType, info.Size()); err != nil {
				return err
			}

			cl, err := requireAuth()
			if err != nil {
				return err
			}
			trackingID := args[0]
			issue, err := cl.GetIssue(cmd.Context(), trackingID)
			if err != nil {
				return err
			}
			if err := lifecycle.CheckTransition(lifecycle.Status(issue.Status), lifecycle.StatusResolved); err != nil {
				return err
			}
			resolved, err := cl.ResolveWithImage(cmd.Context(), trackingID, filepath.Base(resolveImage), contentType, info.Size(), f)
			if err != nil {
				return err
			}
			printJSON(resolved)
			return nil
		},
	}
	issuesResolveCmd.Flags().StringVar(&resolveImage, "image", "", "path to the completion image (max 5 MiB)")

	var pdfOut string
	issuesPDFCmd := &cobra.Command{
		Use:   "pdf <tracking-id>",
		Short: "Download the issue report PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := requireAuth()
			if err != nil {
				return err
			}
			body, err := cl.DownloadPDF(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer body.Close()

			out := pdfOut
			if out == "" {
				out = fmt.Sprintf("issue_%s.pdf", args[0])
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			if _, err := io.Copy(f, body); err != nil {
				return err
			}
			fmt.Printf("saved %s\n", out)
			return nil
		},
	}
	issuesPDFCmd.Flags().StringVarP(&pdfOut, "output", "o", "", "output file (default issue_<tracking-id>.pdf)")

	issuesCmd.AddCommand(issuesListCmd, issuesShowCmd, issuesStartCmd, issuesEscalateCmd, issuesResolveCmd, issuesPDFCmd)

	// accounts
	accountsCmd := &cobra.Command{Use: "accounts", Short: "Administrative account management"}

	accountsListCmd := &cobra.Command{
		Use:   "list",
		Short: "List visible accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := requireAuth()
			if err != nil {
				return err
			}
			users, err := cl.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(users)
			return nil
		},
	}

	var regUserID, regName, regEmail, regPassword string
	accountsCreateCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an administrative account (root only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			regUserID = strings.TrimSpace(regUserID)
			if regUserID == "" || regName == "" || regPassword == "" {
				return fmt.Errorf("--userid, --name and --password are required")
			}
			cl, err := requireRoot(cmd.Context(), rbac.FeatureCreateAccount)
			if err != nil {
				return err
			}
			rec, err := cl.Register(cmd.Context(), upstream.RegisterRequest{
				UserID:   regUserID,
				FullName: regName,
				Email:    regEmail,
				Password: regPassword,
			})
			if err != nil {
				if verr, ok := upstream.AsValidation(err); ok {
					return fmt.Errorf("create failed: %s", verr.Message())
				}
				return err
			}
			printJSON(rec)
			return nil
		},
	}
	accountsCreateCmd.Flags().StringVar(&regUserID, "userid", "", "6-character account identifier")
	accountsCreateCmd.Flags().StringVar(&regName, "name", "", "full name")
	accountsCreateCmd.Flags().StringVar(&regEmail, "email", "", "email address")
	accountsCreateCmd.Flags().StringVar(&regPassword, "password", "", "initial password")

	accountsDeleteCmd := &cobra.Command{
		Use:   "delete <userid>",
		Short: "Delete an account (root only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := requireRoot(cmd.Context(), rbac.FeatureDeleteAccount)
			if err != nil {
				return err
			}
			if err := cl.DeleteUser(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		},
	}

	accountsToggleCmd := &cobra.Command{
		Use:   "toggle <userid>",
		Short: "Flip an account between active and inactive (root only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := requireRoot(cmd.Context(), rbac.FeatureToggleStatus)
			if err != nil {
				return err
			}
			rec, err := cl.ToggleUserStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJSON(rec)
			return nil
		},
	}

	accountsCmd.AddCommand(accountsListCmd, accountsCreateCmd, accountsDeleteCmd, accountsToggleCmd)

	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the account activity log (root only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := requireRoot(cmd.Context(), rbac.FeatureViewLogs)
			if err != nil {
				return err
			}
			entries, err := cl.ActivityLogs(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(entries)
			return nil
		},
	}

	root.AddCommand(loginCmd, logoutCmd, meCmd, healthCmd, issuesCmd, accountsCmd, logsCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
