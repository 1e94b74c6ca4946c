package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/patric-chuzhbe/usercrud/internal/apiclient"
	"github.com/patric-chuzhbe/usercrud/internal/models"
)

const (
	apiURLEnv     = "USERS_API_URL"
	defaultAPIURL = "http://localhost:8080"
)

type usersAPI interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	CreateUser(ctx context.Context, fields models.UserFields) (string, error)
	UpdateUser(ctx context.Context, id string, fields models.UserFields) error
	DeleteUser(ctx context.Context, id string) error
}

type cli struct {
	out    io.Writer
	apiURL string
	newAPI func(baseURL string) usersAPI
}

func newRootCommand(out io.Writer) *cobra.Command {
	c := &cli{
		out: out,
		newAPI: func(baseURL string) usersAPI {
			return apiclient.New(baseURL)
		},
	}

	apiURL := os.Getenv(apiURLEnv)
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	root := &cobra.Command{
		Use:           "usersctl",
		Short:         "Manage users through the users API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.apiURL, "api", apiURL, "users API base URL (env "+apiURLEnv+")")

	root.AddCommand(
		c.listCommand(),
		c.getCommand(),
		c.createCommand(),
		c.updateCommand(),
		c.deleteCommand(),
	)

	return root
}

func (c *cli) printUsers(users []models.User) error {
	if len(users) == 0 {
		_, err := fmt.Fprintln(c.out, "No users yet.")
		return err
	}

	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tCITY\tCOUNTRY")
	for _, usr := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", usr.ID, usr.Name, usr.Email, usr.City, usr.Country)
	}

	return w.Flush()
}

// refresh re-reads the list after a mutation.
func (c *cli) refresh(ctx context.Context, api usersAPI) error {
	users, err := api.ListUsers(ctx)
	if err != nil {
		return err
	}

	return c.printUsers(users)
}

func (c *cli) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.refresh(cmd.Context(), c.newAPI(c.apiURL))
		},
	}
}

func (c *cli) getCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			usr, err := c.newAPI(c.apiURL).GetUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return c.printUsers([]models.User{*usr})
		},
	}
}

func bindUserFields(cmd *cobra.Command, fields *models.UserFields) {
	cmd.Flags().StringVar(&fields.Name, "name", "", "user name")
	cmd.Flags().StringVar(&fields.Email, "email", "", "email address")
	cmd.Flags().StringVar(&fields.City, "city", "", "city")
	cmd.Flags().StringVar(&fields.Country, "country", "", "country")
}

// validate applies the same rules as the server before anything is sent.
func validate(fields models.UserFields) error {
	err := models.ValidateUserFields(fields)
	if err == nil {
		return nil
	}

	var validationErr *models.ValidationError
	if errors.As(err, &validationErr) {
		return fmt.Errorf("invalid user: %v", validationErr.Problems)
	}

	return err
}

func (c *cli) createCommand() *cobra.Command {
	var fields models.UserFields

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validate(fields); err != nil {
				return err
			}

			api := c.newAPI(c.apiURL)
			id, err := api.CreateUser(cmd.Context(), fields)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, "User created:", id)

			return c.refresh(cmd.Context(), api)
		},
	}
	bindUserFields(cmd, &fields)

	return cmd
}

func (c *cli) updateCommand() *cobra.Command {
	var fields models.UserFields

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace name, email, city and country of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validate(fields); err != nil {
				return err
			}

			api := c.newAPI(c.apiURL)
			if err := api.UpdateUser(cmd.Context(), args[0], fields); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "User updated")

			return c.refresh(cmd.Context(), api)
		},
	}
	bindUserFields(cmd, &fields)

	return cmd
}

func (c *cli) deleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api := c.newAPI(c.apiURL)
			if err := api.DeleteUser(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "User deleted")

			return c.refresh(cmd.Context(), api)
		},
	}
}
