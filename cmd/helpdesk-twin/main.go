package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/openkcm/helpdesk-plugins/pkg/config"
	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk"
	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/twin"
	"github.com/openkcm/helpdesk-plugins/pkg/utils/cert"
	"github.com/openkcm/helpdesk-plugins/pkg/utils/tlsconfig"
)

var errClientCAWithoutTLS = errors.New("--tls-client-ca needs --tls-cert or --tls-self-signed")

const (
	readTimeout     = 30 * time.Second
	writeTimeout    = 30 * time.Second
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 10 * time.Second
)

type options struct {
	addr     string
	agent    string
	password string
	logLevel string

	tlsCert       string
	tlsKey        string
	tlsClientCA   string
	tlsSelfSigned bool
}

func main() {
	opts := options{}

	rootCmd := &cobra.Command{
		Use:           "helpdesk-twin",
		Short:         "Serve the simulated helpdesk API over HTTP",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&opts.addr, "addr", ":8080", "Address to listen on")
	flags.StringVar(&opts.agent, "agent", config.DefaultUsername, "Email of the authenticated agent")
	flags.StringVar(&opts.password, "password", "", "Require basic auth with the agent email and this password")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	flags.StringVar(&opts.tlsCert, "tls-cert", "", "Serve TLS with this certificate")
	flags.StringVar(&opts.tlsKey, "tls-key", "", "Private key of --tls-cert")
	flags.StringVar(&opts.tlsClientCA, "tls-client-ca", "", "Require client certificates signed by this CA")
	flags.BoolVar(&opts.tlsSelfSigned, "tls-self-signed", false, "Serve TLS with a generated localhost certificate")

	rootCmd.MarkFlagsRequiredTogether("tls-cert", "tls-key")
	rootCmd.MarkFlagsMutuallyExclusive("tls-cert", "tls-self-signed")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		hclog.Default().Error("helpdesk twin failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func serve(ctx context.Context, opts options) error {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "helpdesk-twin",
		Level: hclog.LevelFromString(opts.logLevel),
	})

	twinOpts := []twin.Option{twin.WithLogger(logger)}
	if opts.password != "" {
		twinOpts = append(twinOpts, twin.WithBasicAuth(opts.agent, opts.password))
	}

	srv := &http.Server{
		Addr:         opts.addr,
		Handler:      twin.New(helpdesk.NewMock(nil, opts.agent), twinOpts...),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	tlsConfig, cleanup, err := serverTLS(opts, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	srv.TLSConfig = tlsConfig

	serveErr := make(chan error, 1)

	go func() {
		logger.Info("starting twin", "addr", opts.addr, "api", twin.APIPrefix, "agent", opts.agent, "tls", tlsConfig != nil)

		var err error
		if tlsConfig != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}

		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down twin")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// serverTLS returns nil when the twin serves plain HTTP. The cleanup removes
// a generated self-signed certificate and is never nil.
func serverTLS(opts options, logger hclog.Logger) (*tls.Config, func(), error) {
	certPath, keyPath := opts.tlsCert, opts.tlsKey
	cleanup := func() {}

	if opts.tlsSelfSigned {
		dir, err := os.MkdirTemp("", "helpdesk-twin-")
		if err != nil {
			return nil, cleanup, err
		}

		cleanup = func() {
			err := os.RemoveAll(dir)
			if err != nil {
				logger.Warn("failed to remove self-signed certificate", "dir", dir, "error", err)
			}
		}

		certPath, keyPath, err = cert.GenerateCertAndKey(dir)
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}

		logger.Info("generated self-signed certificate", "cert", certPath)
	}

	if certPath == "" {
		if opts.tlsClientCA != "" {
			return nil, cleanup, errClientCAWithoutTLS
		}

		return nil, cleanup, nil
	}

	tlsOpts := []tlsconfig.Option{tlsconfig.WithCertAndKey(certPath, keyPath)}
	if opts.tlsClientCA != "" {
		tlsOpts = append(tlsOpts, tlsconfig.WithClientCA(opts.tlsClientCA))
	}

	tlsConfig, err := tlsconfig.NewTLSConfig(tlsOpts...)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}

	return tlsConfig, cleanup, nil
}
