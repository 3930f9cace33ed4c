package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/nhle/uptask/internal/model"
	"github.com/nhle/uptask/internal/session"
	"github.com/nhle/uptask/internal/theme"
)

var errNotLoggedIn = errors.New("not logged in; run `uptask login` first")

func loginCmd(flags *rootFlags) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := setup(flags)
			if err != nil {
				return err
			}
			defer r.Close()

			if email == "" || password == "" {
				fields := []huh.Field{}
				if email == "" {
					fields = append(fields, huh.NewInput().Title("Email").Value(&email))
				}
				if password == "" {
					fields = append(fields, huh.NewInput().
						Title("Password").
						EchoMode(huh.EchoModePassword).
						Value(&password))
				}
				if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
					return fmt.Errorf("reading credentials: %w", err)
				}
			}

			sess, err := r.session.Login(cmd.Context(), session.Credentials{Email: email, Password: password})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s <%s>\n", sess.User.Name, sess.User.Email)
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (prompted when empty)")
	return cmd
}

func logoutCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the remembered session",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := setup(flags)
			if err != nil {
				return err
			}
			defer r.Close()

			r.session.Logout()
			r.projects.Reset(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func whoamiCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := setup(flags)
			if err != nil {
				return err
			}
			defer r.Close()

			sess := r.session.RestoreSession(cmd.Context())
			if sess == nil || sess.User == nil {
				return errNotLoggedIn
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s>\n", sess.User.Name, sess.User.Email)
			return nil
		},
	}
}

func projectsCmd(flags *rootFlags) *cobra.Command {
	var offline bool
	var query string

	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List your projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := setup(flags)
			if err != nil {
				return err
			}
			defer r.Close()

			ctx := cmd.Context()
			if offline {
				if _, err := r.projects.LoadCachedProjects(ctx); err != nil {
					return err
				}
			} else if err := loadOnline(ctx, r); err != nil {
				return err
			}

			list := r.projects.SearchProjects(query)
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No projects.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderProjects(list, r.session.CurrentUser()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "read the last cached list instead of the server")
	cmd.Flags().StringVarP(&query, "search", "s", "", "only show projects whose name or client matches")
	return cmd
}

func loadOnline(ctx context.Context, r *runtime) error {
	if sess := r.session.RestoreSession(ctx); sess == nil {
		return errNotLoggedIn
	}
	if _, err := r.projects.LoadProjects(ctx); err != nil {
		return err
	}
	return nil
}

func renderProjects(list []model.Project, me *model.User) string {
	header := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBlue).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.ColorBorder)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		}).
		Headers("NAME", "CLIENT", "DEADLINE", "ROLE")

	for _, p := range list {
		role := ""
		switch {
		case me == nil:
		case p.Owner != "" && p.Owner != me.ID:
			role = "collaborator"
		default:
			role = "owner"
		}
		deadline := ""
		if !p.Deadline.IsZero() {
			deadline = p.Deadline.UTC().Format(model.DateLayout)
		}
		t.Row(p.Name, p.Client, deadline, role)
	}
	return strings.TrimRight(t.Render(), "\n")
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "uptask", Version)
		},
	}
}
