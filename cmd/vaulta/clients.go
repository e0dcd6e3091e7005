package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vaulta/vaulta-go/model"
)

func newClientsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "Manage API clients.",
		Long: `Manage the API clients allowed to request signed serve links.

A client secret is shown once, on create and regenerate-secret.`,
	}

	cmd.AddCommand(
		newClientsListCmd(a),
		newClientsGetCmd(a),
		newClientsGetByClientIDCmd(a),
		newClientsCreateCmd(a),
		newClientsUpdateCmd(a),
		newClientsDeleteCmd(a),
		newClientsRegenerateSecretCmd(a),
	)

	return cmd
}

func newClientsListCmd(a *app) *cobra.Command {
	var page model.Page

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List clients.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			vc, err := a.api()
			if err != nil {
				return err
			}

			clients, err := vc.ListClients(cmd.Context(), page)
			if err != nil {
				return err
			}

			return a.print(cmd, clients)
		},
	}

	cmd.Flags().IntVar(&page.Skip, "skip", 0, "number of clients to skip")
	cmd.Flags().IntVar(&page.Limit, "limit", model.DefaultLimit, "maximum number of clients to return")

	return cmd
}

func newClientsGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a client by UUID.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			vc, err := a.api()
			if err != nil {
				return err
			}

			c, err := vc.GetClient(cmd.Context(), id)
			if err != nil {
				return err
			}

			return a.print(cmd, c)
		},
	}
}

func newClientsGetByClientIDCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get-by-client-id <client-id>",
		Short: "Show a client by its client id slug.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vc, err := a.api()
			if err != nil {
				return err
			}

			c, err := vc.GetClientByClientID(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return a.print(cmd, c)
		},
	}
}

func newClientsCreateCmd(a *app) *cobra.Command {
	var in model.ClientCreate

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new client and print its secret.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			vc, err := a.api()
			if err != nil {
				return err
			}

			c, err := vc.CreateClient(cmd.Context(), in)
			if err != nil {
				return err
			}

			return a.print(cmd, c)
		},
	}

	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.ClientID, "client-id", "", "unique client id slug")

	return cmd
}

func newClientsUpdateCmd(a *app) *cobra.Command {
	var name, clientID string

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change the name or client id of a client.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			var in model.ClientUpdate
			if cmd.Flags().Changed("name") {
				in.Name = &name
			}
			if cmd.Flags().Changed("client-id") {
				in.ClientID = &clientID
			}
			if in.Name == nil && in.ClientID == nil {
				return errors.New("nothing to update: set --name or --client-id")
			}

			vc, err := a.api()
			if err != nil {
				return err
			}

			c, err := vc.UpdateClient(cmd.Context(), id, in)
			if err != nil {
				return err
			}

			return a.print(cmd, c)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "new display name")
	cmd.Flags().StringVar(&clientID, "client-id", "", "new client id slug")

	return cmd
}

func newClientsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a client.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			vc, err := a.api()
			if err != nil {
				return err
			}

			ok, err := vc.DeleteClient(cmd.Context(), id)
			if err != nil {
				return err
			}

			return a.print(cmd, map[string]bool{"deleted": ok})
		},
	}
}

func newClientsRegenerateSecretCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "regenerate-secret <id>",
		Short: "Issue a new secret for a client, invalidating the old one.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			vc, err := a.api()
			if err != nil {
				return err
			}

			c, err := vc.RegenerateClientSecret(cmd.Context(), id)
			if err != nil {
				return err
			}

			return a.print(cmd, c)
		},
	}
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q: %w", s, err)
	}

	return id, nil
}
