package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fxhedz/internal/client"
	"fxhedz/internal/domain"
	"fxhedz/internal/logger"
)

// newRuntime loads the client config and builds a runtime over the persisted state file
func newRuntime(opts *rootOptions) (*client.Runtime, *zap.Logger, error) {
	cfg, err := client.LoadConfig(opts.configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(opts.debug)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	path := cfg.StatePath
	if path == "" {
		path = client.DefaultStatePath()
	}
	storage, err := client.NewFileStorage(path)
	if err != nil {
		return nil, nil, err
	}

	rt, err := client.NewRuntime(cfg, storage, client.DetectEnvironment(version), nil, log)
	if err != nil {
		return nil, nil, err
	}
	return rt, log, nil
}

func newWatchCommand(opts *rootOptions) *cobra.Command {
	var open string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll access and signals and log every change",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, log, err := newRuntime(opts)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt.Verifier.OnChange(func(status domain.AccessStatus) {
				log.Info("access",
					zap.Stringer("state", status.State),
					zap.String("plan", status.Plan),
					zap.String("reason", status.Reason),
				)
				if rt.Verifier.CanResetDevices() {
					log.Warn("device limit reached; run reset-devices to unbind every device and sign in again")
				}
			})
			rt.Fetcher.OnUpdate(func(u client.Update) {
				switch u.Kind {
				case client.UpdateSnapshot:
					log.Info("signals",
						zap.Int("instruments", len(u.Signals)),
						zap.Bool("placeholder", u.Placeholder),
					)
				case client.UpdateDetail:
					fields := []zap.Field{zap.String("pair", u.Pair)}
					if u.Detail != nil {
						fields = append(fields,
							zap.String("direction", string(u.Detail.Direction)),
							zap.String("price", u.Detail.Price.String()),
						)
					}
					log.Info("detail", fields...)
				}
			})

			rt.Start(ctx)
			defer rt.Stop()
			if open != "" {
				rt.Fetcher.Open(open)
			}

			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&open, "open", "", "instrument whose detail is polled, such as XAUUSD")
	return cmd
}

func newSignInCommand(opts *rootOptions) *cobra.Command {
	var idToken string

	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Exchange a Google ID token for a device session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, _, err := newRuntime(opts)
			if err != nil {
				return err
			}
			rt.Identity.EnsureDeviceID()
			rt.Identity.ComputeFingerprint()

			if err := rt.Session.SignIn(cmd.Context(), idToken); err != nil {
				if errors.Is(err, domain.ErrDeviceLimitExceeded) {
					return fmt.Errorf("%w: run reset-devices from a signed-in device", err)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", rt.Session.Info().Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&idToken, "id-token", "", "Google ID token")
	_ = cmd.MarkFlagRequired("id-token")
	return cmd
}

func newSignOutCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, _, err := newRuntime(opts)
			if err != nil {
				return err
			}
			if err := rt.Session.SignOut(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
}

func newResetDevicesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-devices",
		Short: "Unbind every device of the account and sign out",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, _, err := newRuntime(opts)
			if err != nil {
				return err
			}
			if !rt.Session.Info().Authenticated {
				return errors.New("not signed in")
			}
			rt.Identity.EnsureDeviceID()
			rt.Identity.ComputeFingerprint()

			removed, err := rt.Client.ResetDevices(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d device(s); sign in again\n", removed)
			return nil
		},
	}
}

func newFingerprintCommand(opts *rootOptions) *cobra.Command {
	env := client.DetectEnvironment(version)

	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the device id and fingerprint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, _, err := newRuntime(opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "device:      %s\n", rt.Identity.EnsureDeviceID())
			fmt.Fprintf(cmd.OutOrStdout(), "fingerprint: %s\n", client.Fingerprint(env))
			return nil
		},
	}
	cmd.Flags().StringVar(&env.UserAgent, "user-agent", env.UserAgent, "user agent")
	cmd.Flags().IntVar(&env.ScreenWidth, "screen-width", 0, "screen width")
	cmd.Flags().IntVar(&env.ScreenHeight, "screen-height", 0, "screen height")
	cmd.Flags().StringVar(&env.Timezone, "timezone", env.Timezone, "timezone")
	cmd.Flags().StringVar(&env.Locale, "locale", env.Locale, "locale")
	return cmd
}
