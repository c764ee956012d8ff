package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/example/library-lending/internal/application"
	"github.com/example/library-lending/internal/notification"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func printJSON(cmd *cobra.Command, v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	return err
}

// withServices opens storage, wires the services, runs fn and drains the
// background jobs it started before closing storage.
func (c *cli) withServices(ctx context.Context, fn func(ctx context.Context, svc *services) error) (err error) {
	storage, err := openStorage(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := storage.Close(); cerr != nil {
			c.logger.Error("failed to close storage", "error", cerr)
		}
	}()

	svc, err := buildServices(c.cfg, storage, c.logger, c.overrides)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.Worker.ShutdownTimeout)
		defer cancel()
		if serr := svc.shutdown(shutdownCtx); serr != nil {
			c.logger.Error("background jobs did not finish", "error", serr)
		}
	}()

	return fn(ctx, svc)
}

func serveCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return c.withServices(ctx, func(ctx context.Context, svc *services) error {
				server := &http.Server{
					Addr:              fmt.Sprintf(":%d", c.cfg.HTTP.Port),
					Handler:           svc.router(),
					ReadHeaderTimeout: 10 * time.Second,
					ReadTimeout:       c.cfg.HTTP.ReadTimeout,
					WriteTimeout:      c.cfg.HTTP.WriteTimeout,
					IdleTimeout:       60 * time.Second,
				}

				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
						c.logger.Error("failed to shutdown server", "error", err)
					}
				}()

				c.logger.Info("library API listening", "addr", server.Addr, "strategy", svc.strategy)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server encountered error: %w", err)
				}
				return nil
			})
		},
	}
}

func migrateCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			storage, err := openStorage(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			if err := storage.Close(); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "database %s is up to date\n", c.cfg.Database.Path)
			return err
		},
	}
}

func triggerCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger <due-today|due-tomorrow|overdue|inactivity|consolidated|all>",
		Short: "Run one reminder pass, or all three reminder passes",
		Long: `Run a reminder pass once and print its result envelope.

Examples:
  # The nightly consolidated run
  librarian trigger all

  # Only the overdue notices
  librarian trigger overdue`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.ToLower(strings.TrimSpace(args[0]))
			if name == "all" || name == "consolidated" {
				return c.withServices(cmd.Context(), func(ctx context.Context, svc *services) error {
					result, err := svc.orchestrator.RunConsolidated(ctx)
					if perr := printJSON(cmd, result); perr != nil {
						return perr
					}
					return err
				})
			}

			category, ok := application.ParseCategory(name)
			if !ok {
				return fmt.Errorf("unknown trigger %q", args[0])
			}
			return c.withServices(cmd.Context(), func(ctx context.Context, svc *services) error {
				result, err := svc.orchestrator.Trigger(ctx, category)
				if perr := printJSON(cmd, result); perr != nil {
					return perr
				}
				return err
			})
		},
	}
}

func previewCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "preview",
		Short: "Count the recipients each reminder pass would address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withServices(cmd.Context(), func(ctx context.Context, svc *services) error {
				counts, err := svc.orchestrator.PreviewRecipientCounts(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, counts)
			})
		},
	}
}

func loanCommand(c *cli) *cobra.Command {
	loanCmd := &cobra.Command{
		Use:   "loan",
		Short: "Borrow or return a book on behalf of a member",
	}

	var userID, bookID string
	borrowCmd := &cobra.Command{
		Use:   "borrow",
		Short: "Borrow a book",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withServices(cmd.Context(), func(ctx context.Context, svc *services) error {
				loan, err := svc.lending.Borrow(ctx, application.BorrowInput{UserID: userID, BookID: bookID})
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]any{
					"id":      loan.ID,
					"userId":  loan.UserID,
					"bookId":  loan.BookID,
					"dueDate": loan.DueDate.Format(time.DateOnly),
					"status":  loan.Status,
				})
			})
		},
	}
	borrowCmd.Flags().StringVar(&userID, "user", "", "Member id")
	borrowCmd.Flags().StringVar(&bookID, "book", "", "Book id")

	returnCmd := &cobra.Command{
		Use:   "return <loan-id>",
		Short: "Return a borrowed book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withServices(cmd.Context(), func(ctx context.Context, svc *services) error {
				result, err := svc.lending.ReturnLoan(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]any{
					"id":              result.Loan.ID,
					"status":          result.Loan.Status,
					"alreadyReturned": result.AlreadyReturned,
				})
			})
		},
	}

	loanCmd.AddCommand(borrowCmd, returnCmd)
	return loanCmd
}

func noticeCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "notice <user-id> <approval|rejection|welcome>",
		Short: "Send an account notice to a member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := notification.ParseKind(args[1])
			if err != nil {
				return err
			}
			return c.withServices(cmd.Context(), func(ctx context.Context, svc *services) error {
				outcome, err := svc.accounts.Send(ctx, args[0], kind)
				if perr := printJSON(cmd, outcome); perr != nil {
					return perr
				}
				return err
			})
		},
	}
}

func logCommand(c *cli) *cobra.Command {
	var filter application.AuditFilter
	cmd := &cobra.Command{
		Use:   "log",
		Short: "List recent notification log rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withServices(cmd.Context(), func(ctx context.Context, svc *services) error {
				entries, err := svc.audit.List(ctx, filter)
				if err != nil {
					return err
				}
				return printJSON(cmd, entries)
			})
		},
	}
	cmd.Flags().StringVar(&filter.Status, "status", "", "Only rows with this status (SENT, FAILED, PENDING)")
	cmd.Flags().StringVar(&filter.Kind, "kind", "", "Only rows of this notification kind")
	cmd.Flags().StringVar(&filter.CorrelationID, "correlation-id", "", "Only rows of one queued run")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "Maximum rows to print")
	return cmd
}
