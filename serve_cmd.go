package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/rtvoice/internal/eventstream"
	"github.com/dgnsrekt/rtvoice/tts"
)

var (
	serveFlags request
	serveAddr  string
	serveWatch bool

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the speaker over a websocket",
		Long: paragraph(fmt.Sprintf("\n%s a speaker over a websocket. Clients send speak, silence, pause "+
			"and unpause commands as JSON and receive every speech event. "+
			"Provider settings are reloaded when the config file changes.", keyword("Serve"))),
		Example: paragraph("rtvoice serve --addr 127.0.0.1:5188"),
		Args:    cobra.NoArgs,
		RunE:    runServe,
	}
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := serveFlags.config()
	if err != nil {
		return err
	}
	s, done, err := newSpeaker(cfg)
	if err != nil {
		return err
	}
	defer done()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stream := eventstream.NewServer(s, log.Default())
	defer stream.Close() //nolint:errcheck

	mux := http.NewServeMux()
	mux.Handle("/events", stream)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, "provider=%s voices=%d speaking=%t clients=%d\n",
			s.ProviderName(), len(s.Voices()), s.IsSpeaking(), stream.Clients())
	})

	httpServer := &http.Server{
		Addr:              serveAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if serveWatch && configFile != "" {
		go func() {
			err := s.WatchConfig(ctx, configFile, reloadConfig(&serveFlags))
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("Config watcher stopped", "error", err)
			}
		}()
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("Serving events", "addr", serveAddr, "provider", s.ProviderName())
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("unable to serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.Silence()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("unable to shut down: %w", err)
	}
	return nil
}

// reloadConfig re-reads the config file and applies the provider flags of
// r on top of it.
func reloadConfig(r *request) func() (tts.Config, error) {
	return func() (tts.Config, error) {
		if err := viper.ReadInConfig(); err != nil {
			return tts.Config{}, fmt.Errorf("unable to read config: %w", err)
		}
		return r.config()
	}
}

func init() {
	serveFlags.registerProvider(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:5188", "address to listen on")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", true, "reload providers when the config file changes")
}
