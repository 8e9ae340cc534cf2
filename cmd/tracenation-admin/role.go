package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
	"github.com/tracenation/tracenation-api/internal/ports"
)

func newRoleCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Inspect and assign user roles",
	}
	cmd.AddCommand(newRoleGetCmd(a), newRoleSetCmd(a), newRoleUnsetCmd(a), newRoleListCmd(a), newRoleResolveCmd(a))
	return cmd
}

func newRoleGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <user-id>",
		Short: "Show the stored and resolved role of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			roles, closeFn, err := a.openRoles(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			raw, err := roles.GetRole(ctx, args[0])
			switch {
			case errors.Is(err, ports.ErrRoleNotFound):
				_, err = fmt.Fprintf(a.out, "%s: no stored role (resolves to %s)\n", args[0], domainauth.RoleCitoyen)
				return err
			case err != nil:
				return fmt.Errorf("get role: %w", err)
			}
			_, err = fmt.Fprintf(a.out, "%s: %s (stored %q, %s)\n",
				args[0], domainauth.ResolveRole(raw), raw, domainauth.ResolveRole(raw).Label())
			return err
		},
	}
}

func newRoleSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <user-id> <role>",
		Short: "Assign a role; accepts citoyen, admin, superadmin or a stored value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, ok := domainauth.ParseRole(strings.TrimSpace(args[1]))
			if !ok {
				return fmt.Errorf("unknown role %q (valid: citoyen, admin, superadmin)", args[1])
			}
			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			roles, closeFn, err := a.openRoles(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			raw := domainauth.RawRoleFor(role)
			if err := roles.UpsertRole(ctx, args[0], raw); err != nil {
				return fmt.Errorf("set role: %w", err)
			}
			_, err = fmt.Fprintf(a.out, "%s: %s (stored %q)\n", args[0], role, raw)
			return err
		},
	}
}

func newRoleUnsetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unset <user-id>",
		Short: "Remove the stored role; the user then resolves to citoyen",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			roles, closeFn, err := a.openRoles(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			deleted, err := roles.Delete(ctx, args[0])
			if err != nil {
				return fmt.Errorf("unset role: %w", err)
			}
			if !deleted {
				_, err = fmt.Fprintf(a.out, "%s: no stored role\n", args[0])
				return err
			}
			_, err = fmt.Fprintf(a.out, "%s: role removed\n", args[0])
			return err
		},
	}
}

type roleListOptions struct {
	Role   string
	Limit  int
	Offset int
}

func newRoleListCmd(a *app) *cobra.Command {
	var opts roleListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored roles, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var filter domainauth.RawRole
			if opts.Role != "" {
				role, ok := domainauth.ParseRole(opts.Role)
				if !ok {
					return fmt.Errorf("unknown role %q", opts.Role)
				}
				filter = domainauth.RawRoleFor(role)
			}
			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			roles, closeFn, err := a.openRoles(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			list, err := roles.List(ctx, filter, opts.Limit, opts.Offset)
			if err != nil {
				return fmt.Errorf("list roles: %w", err)
			}
			return a.printRoles(list)
		},
	}
	cmd.Flags().StringVar(&opts.Role, "role", "", "Only list users with this role")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "Maximum number of rows")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Rows to skip")
	return cmd
}

func (a *app) printRoles(list []domainauth.UserRole) error {
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "USER ID\tROLE\tSTORED\tUPDATED AT"); err != nil {
		return err
	}
	for _, ur := range list {
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			ur.UserID, ur.Canonical(), ur.Role, ur.UpdatedAt.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func newRoleResolveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <stored-role>",
		Short: "Show the canonical role a stored value resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			role := domainauth.ResolveRole(domainauth.RawRole(args[0]))
			_, err := fmt.Fprintf(a.out, "%s -> %s (%s)\n", args[0], role, role.Label())
			return err
		},
	}
}
