//nolint:forbidigo
package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/magodo/slog2hclog"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/spf13/cobra"

	"github.com/openkcm/helpdesk-plugins/pkg/config"
	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk"
	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/attr"
)

var errIDRequired = errors.New("--id is required")

type options struct {
	host, username, password, certPath, keyPath string
	mock, verbose                               bool
	perPage                                     int
}

func getLogger(verbose bool) hclog.Logger {
	logLevel := new(slog.LevelVar)
	logLevel.Set(slog.LevelError)

	if verbose {
		logLevel.Set(slog.LevelDebug)
	}

	return slog2hclog.New(slog.Default(), logLevel)
}

func main() {
	log.SetOutput(os.Stdout)
	slog.SetLogLoggerLevel(slog.LevelDebug)

	err := rootCommand().Execute()
	if err != nil {
		fmt.Println("Error:", err.Error())
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "helpdeskclient",
		Short:         "Script to test helpdesk API calls",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.host, "host", "", "API base URL, e.g. https://acme.zendesk.com/api/v2")
	flags.StringVar(&opts.username, "username", "", "Agent email, or email/token for API tokens")
	flags.StringVar(&opts.password, "password", "", "Password or API token")
	flags.StringVar(&opts.certPath, "certPath", "", "Client Certificate Path")
	flags.StringVar(&opts.keyPath, "keyPath", "", "Client Private Key Path")
	flags.BoolVar(&opts.mock, "mock", false, "Run against the in-process mock instead of the API")
	flags.BoolVar(&opts.verbose, "verbose", false, "Log requests")
	flags.IntVar(&opts.perPage, "perPage", config.DefaultPerPage, "Records per page")

	root.AddCommand(
		currentUserCommand(opts),
		getUserCommand(opts),
		listUsersCommand(opts),
		searchUsersCommand(opts),
		listGroupsCommand(opts),
		groupMembersCommand(opts),
		createTicketCommand(opts),
		commentCommand(opts),
	)

	return root
}

func newClient(opts *options) (*helpdesk.Client, error) {
	cfg := &config.Config{
		Mock:     opts.mock,
		Username: opts.username,
		PerPage:  opts.perPage,
	}

	if cfg.Username == "" {
		cfg.Username = config.DefaultUsername
	}

	if opts.host != "" {
		cfg.Host = commoncfg.SourceRef{
			Source: commoncfg.EmbeddedSourceValue,
			Value:  "\"" + opts.host + "\"",
		}
	}

	if opts.certPath != "" && opts.keyPath != "" {
		cfg.Auth = commoncfg.SecretRef{
			Type: commoncfg.MTLSSecretType,
			MTLS: commoncfg.MTLS{
				Cert: commoncfg.SourceRef{
					Source: commoncfg.FileSourceValue,
					File: commoncfg.CredentialFile{
						Path:   opts.certPath,
						Format: commoncfg.BinaryFileFormat,
					},
				},
				CertKey: commoncfg.SourceRef{
					Source: commoncfg.FileSourceValue,
					File: commoncfg.CredentialFile{
						Path:   opts.keyPath,
						Format: commoncfg.BinaryFileFormat,
					},
				},
			},
		}
	} else {
		cfg.Auth = commoncfg.SecretRef{
			Type: commoncfg.BasicSecretType,
			Basic: commoncfg.BasicAuth{
				Username: commoncfg.SourceRef{
					Source: commoncfg.EmbeddedSourceValue,
					Value:  opts.username,
				},
				Password: commoncfg.SourceRef{
					Source: commoncfg.EmbeddedSourceValue,
					Value:  opts.password,
				},
			},
		}
	}

	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return helpdesk.NewFromConfig(cfg, getLogger(opts.verbose))
}

func currentUserCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "current-user",
		Short: "Show the authenticated agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newClient(opts)
			if err != nil {
				return err
			}

			user, err := client.CurrentUser(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Println("Current User:", user.Name(), user.Email())

			return nil
		},
	}
}

func getUserCommand(opts *options) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "get-user",
		Short: "Fetch a user by id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if id == "" {
				return errIDRequired
			}

			client, err := newClient(opts)
			if err != nil {
				return err
			}

			user, err := client.Users().Get(cmd.Context(), id)
			if err != nil {
				return err
			}

			if user == nil {
				fmt.Println("User not found:", id)
				return nil
			}

			fmt.Println("Found User:", user.Name(), user.Email())

			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "ID of the user to retrieve")

	return cmd
}

func listUsersCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list-users",
		Short: "List every user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newClient(opts)
			if err != nil {
				return err
			}

			fmt.Println("Found Users:")

			for user, err := range client.Users().Iter(cmd.Context()) {
				if err != nil {
					return err
				}

				fmt.Println(user.Name(), user.Email())
			}

			return nil
		},
	}
}

func searchUsersCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "search-users QUERY",
		Short: "Search users, e.g. 'role:agent name:Jo*'",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := helpdesk.ParseSearch(strings.Join(args, " "))
			if err != nil {
				return err
			}

			client, err := newClient(opts)
			if err != nil {
				return err
			}

			users, err := client.SearchUsers(cmd.Context(), query)
			if err != nil {
				return err
			}

			fmt.Printf("Found %d Users:\n", users.Cursor().Count)

			for _, user := range users.Loaded() {
				fmt.Println(user.Name(), user.Email())
			}

			return nil
		},
	}
}

func listGroupsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list-groups",
		Short: "List every group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newClient(opts)
			if err != nil {
				return err
			}

			groups, err := client.Groups().Collect(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Println("Found Groups:")

			for _, group := range groups {
				fmt.Println(group.Name())
			}

			return nil
		},
	}
}

func groupMembersCommand(opts *options) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "group-members",
		Short: "List the users of a group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if id == "" {
				return errIDRequired
			}

			client, err := newClient(opts)
			if err != nil {
				return err
			}

			group, err := client.Groups().Get(cmd.Context(), id)
			if err != nil {
				return err
			}

			if group == nil {
				fmt.Println("Group not found:", id)
				return nil
			}

			memberships, err := group.Memberships().Collect(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Println("Members of", group.Name()+":")

			for _, membership := range memberships {
				user, err := membership.User().Resolve(cmd.Context())
				if err != nil {
					return err
				}

				if user != nil {
					fmt.Println(user.Name(), user.Email())
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "ID of the group")

	return cmd
}

func createTicketCommand(opts *options) *cobra.Command {
	var subject, description, priority string

	cmd := &cobra.Command{
		Use:   "create-ticket",
		Short: "Open a ticket as the authenticated agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newClient(opts)
			if err != nil {
				return err
			}

			attrs := attr.Record{"subject": subject, "description": description}
			if priority != "" {
				attrs["priority"] = priority
			}

			ticket, err := client.Tickets().Create(cmd.Context(), attrs)
			if err != nil {
				return err
			}

			id, _ := ticket.ID()
			fmt.Println("Created Ticket:", id, ticket.Subject(), ticket.Status())

			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Ticket subject")
	cmd.Flags().StringVar(&description, "description", "", "Ticket description")
	cmd.Flags().StringVar(&priority, "priority", "", "low, normal, high or urgent")

	return cmd
}

func commentCommand(opts *options) *cobra.Command {
	var (
		id      string
		private bool
	)

	cmd := &cobra.Command{
		Use:   "comment BODY",
		Short: "Add a comment to a ticket",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return errIDRequired
			}

			client, err := newClient(opts)
			if err != nil {
				return err
			}

			ticket, err := client.Tickets().Get(cmd.Context(), id)
			if err != nil {
				return err
			}

			if ticket == nil {
				fmt.Println("Ticket not found:", id)
				return nil
			}

			var commentOpts []helpdesk.CommentOption
			if private {
				commentOpts = append(commentOpts, helpdesk.PrivateComment())
			}

			comment, err := ticket.Comment(cmd.Context(), strings.Join(args, " "), commentOpts...)
			if err != nil {
				return err
			}

			fmt.Println("Added Comment:", comment.Body())

			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "ID of the ticket")
	cmd.Flags().BoolVar(&private, "private", false, "Hide the comment from the requester")

	return cmd
}
