package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/Odillon241/Chronodil-sub001/internal/auth"
	"github.com/Odillon241/Chronodil-sub001/internal/chat"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func loadSettings() (Settings, error) {
	// a missing .env file is fine, the environment may already be set
	_ = godotenv.Load()

	var settings Settings
	_, err := env.UnmarshalFromEnviron(&settings)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings from environment: %w", err)
	}

	return settings, nil
}

func newRootCommand() *cobra.Command {
	serveCmd := newServeCommand()

	rootCmd := &cobra.Command{
		Use:           "chatrelay",
		Short:         "Realtime chat relay for Chronodil conversations",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serveCmd.RunE,
	}

	rootCmd.AddCommand(
		serveCmd,
		newMigrateCommand(),
		newTokenCommand(),
		newSeedCommand(),
	)

	return rootCmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the WebSocket relay and its REST routes",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}

			logger, err := buildZapLogger(settings.LogEncoding)
			if err != nil {
				return err
			}
			defer logger.Sync()

			app, err := NewApp(cmd.Context(), logger, settings)
			if err != nil {
				logger.Error("failed to setup", zap.Error(err))
				return err
			}

			return app.Run(cmd.Context())
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the chat tables or indexes of the configured store and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}

			engine, err := openPersistenceEngine(cmd.Context(), settings)
			if err != nil {
				return err
			}

			return errors.Join(engine.Setup(cmd.Context()), engine.Close(cmd.Context()))
		},
	}
}

func newTokenCommand() *cobra.Command {
	var subject string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development JWT signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}

			authenticator := auth.NewAuthenticator(nil, auth.Options{
				Secret:   settings.JWTSecret,
				Audience: settings.JWTAudience,
				Issuer:   settings.JWTIssuer,
			})

			token, err := authenticator.IssueToken(subject, ttl)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)

			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "sub", "", "user id to put in the subject claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("sub")

	return cmd
}

// seeder is implemented by stores that can create development fixtures.
type seeder interface {
	UpsertUser(ctx context.Context, user chat.User) error
	AddMembers(ctx context.Context, conversationId string, userIds ...string) error
}

func newSeedCommand() *cobra.Command {
	var conversationId string
	var members []string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a conversation and its members in the configured store",
		Long: `Create a conversation and its members for local development.
Members are given as id:name pairs, for example --member u1:alice --member u2:bob.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}

			engine, err := openPersistenceEngine(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer engine.Close(context.Background())

			store, ok := engine.(seeder)
			if !ok {
				return fmt.Errorf("the %s driver does not support seeding", settings.PersistenceDriver)
			}

			err = engine.Setup(cmd.Context())
			if err != nil {
				return err
			}

			return seed(cmd.Context(), store, conversationId, members, func(conversationId string) {
				fmt.Fprintln(cmd.OutOrStdout(), conversationId)
			})
		},
	}

	cmd.Flags().StringVar(&conversationId, "conversation", "", "conversation id, generated when empty")
	cmd.Flags().StringArrayVar(&members, "member", nil, "member as id:name, repeatable")

	return cmd
}

func seed(
	ctx context.Context,
	store seeder,
	conversationId string,
	members []string,
	created func(conversationId string),
) error {
	if conversationId == "" {
		conversationId = uuid.NewString()
	}

	userIds := make([]string, 0, len(members))
	for _, member := range members {
		userId, name, _ := strings.Cut(member, ":")
		if userId == "" {
			return fmt.Errorf("invalid member %q", member)
		}
		if name == "" {
			name = userId
		}

		err := store.UpsertUser(ctx, chat.User{Id: userId, Name: name})
		if err != nil {
			return err
		}

		userIds = append(userIds, userId)
	}

	err := store.AddMembers(ctx, conversationId, userIds...)
	if err != nil {
		return err
	}

	created(conversationId)

	return nil
}
