package cli

import (
	"context"

	"github.com/spf13/cobra"

	authclient "github.com/goliatone/go-authclient"
)

func newLoginCommand(opts *globalOptions) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				res := a.auther.Login(ctx, email, password)
				return report(a, res, viewOf(a.auther.State()))
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newRegisterCommand(opts *globalOptions) *cobra.Command {
	var req authclient.SignUpRequest
	var referral string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a new account",
		Long: `Create a new account. With --referral the account is created through
the referral function and credited to the referrer.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				var res authclient.Result[*authclient.SignUpResult]
				if referral != "" {
					res = a.auther.RegisterWithReferral(ctx, req, referral)
				} else {
					res = a.auther.Register(ctx, req)
				}
				if !res.Success {
					return report(a, res, nil)
				}
				return report(a, res, map[string]any{
					"user":               res.Data.User,
					"needs_confirmation": res.Data.NeedsConfirmation(),
				})
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&req.Email, "email", "", "account email")
	flags.StringVar(&req.Password, "password", "", "account password")
	flags.StringVar(&req.Username, "username", "", "public username")
	flags.StringVar(&req.FullName, "full-name", "", "full name")
	flags.StringVar(&req.Phone, "phone", "", "phone number")
	flags.StringVar(&referral, "referral", "", "referral code")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLogoutCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				return report(a, a.auther.Logout(ctx), nil)
			})
		},
	}
}

func newWhoamiCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				return a.printJSON(viewOf(a.auther.State()))
			})
		},
	}
}

func newRefreshCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh token for a new session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				res := a.auther.RefreshSession(ctx)
				return report(a, res, viewOf(a.auther.State()))
			})
		},
	}
}

func newResetPasswordCommand(opts *globalOptions) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Send a password reset email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				return report(a, a.auther.ResetPassword(ctx, email), nil)
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newUpdatePasswordCommand(opts *globalOptions) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "update-password",
		Short: "Change the password of the signed in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				return report(a, a.auther.UpdatePassword(ctx, password), nil)
			})
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "new password")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newUpdateProfileCommand(opts *globalOptions) *cobra.Command {
	var update authclient.ProfileUpdate

	cmd := &cobra.Command{
		Use:   "update-profile",
		Short: "Update username, full name or phone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				res := a.auther.UpdateProfile(ctx, update)
				if !res.Success {
					return report(a, res, nil)
				}
				return report(a, res, res.Data)
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&update.Username, "username", "", "public username")
	flags.StringVar(&update.FullName, "full-name", "", "full name")
	flags.StringVar(&update.Phone, "phone", "", "phone number")
	return cmd
}
