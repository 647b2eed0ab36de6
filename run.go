package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanpawarit/chative-supervisor/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/chative-supervisor/agent/contract"
	"github.com/tanpawarit/chative-supervisor/agent/metrics"
)

var runCmd = &cobra.Command{
	Use:   "run [task]",
	Short: "Run a task through the supervisor and its workers",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task, _ := cmd.Flags().GetString("task")
		if task == "" && len(args) > 0 {
			task = args[0]
		}
		if strings.TrimSpace(task) == "" {
			return errors.New("a task is required: pass --task or a positional argument")
		}
		jsonMode, _ := cmd.Flags().GetBool("json")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := loadApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if metricsAddr != "" {
			srv := &http.Server{Addr: metricsAddr, Handler: metrics.Handler(a.gatherer), ReadHeaderTimeout: 5 * time.Second}
			go func() {
				log.Info().Str("addr", metricsAddr).Msg("metrics server listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error().Err(err).Msg("metrics server stopped")
				}
			}()
			defer srv.Close()
		}

		stream := a.orch.Stream(ctx, orchestrator.Seed{Task: task})
		enc := json.NewEncoder(cmd.OutOrStdout())
		for ev := range stream.Events() {
			if jsonMode {
				if err := enc.Encode(ev); err != nil {
					log.Warn().Err(err).Msg("encode event")
				}
				continue
			}
			logEvent(ev)
		}

		res, runErr := stream.Wait()
		a.notify(ctx, res, runErr)
		if runErr != nil {
			return runErr
		}
		if !jsonMode {
			fmt.Fprintln(cmd.OutOrStdout(), finalText(res))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("task", "", "task for the supervisor")
	runCmd.Flags().Bool("json", false, "print events as NDJSON")
	runCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :2112")
}

func logEvent(ev contractx.Event) {
	e := log.Info().Str("run_id", ev.RunID).Int("turn", ev.Turn).Str("event", string(ev.Type))
	if ev.Worker != "" {
		e = e.Str("worker", string(ev.Worker))
	}
	if ev.Next != "" {
		e = e.Str("next", ev.Next)
	}
	if ev.Tool != "" {
		e = e.Str("tool", string(ev.Tool))
	}
	if ev.Err != "" {
		e = e.Str("error", ev.Err)
	}
	e.Msg("run event")
}

func finalText(res orchestrator.Result) string {
	if res.Output != "" {
		return res.Output
	}
	for i := len(res.History) - 1; i >= 0; i-- {
		if m := res.History[i]; m.IsContribution() {
			return m.Content
		}
	}
	return ""
}

type runNotification struct {
	RunID  string              `json:"run_id"`
	Status orchestrator.Status `json:"status"`
	Turns  int                 `json:"turns"`
	Output string              `json:"output,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// notify publishes the run outcome to the configured webhook through QStash.
func (a *app) notify(ctx context.Context, res orchestrator.Result, runErr error) {
	if a.qstash == nil {
		return
	}
	body := runNotification{RunID: res.RunID, Status: res.Status, Turns: res.Turns, Output: finalText(res)}
	if runErr != nil {
		body.Error = runErr.Error()
	}

	// the run context may already be cancelled
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	id, err := a.qstash.Publish(pubCtx, a.webhook, body)
	if err != nil {
		log.Warn().Err(err).Str("run_id", res.RunID).Msg("publish run result")
		return
	}
	log.Info().Str("run_id", res.RunID).Str("message_id", id).Msg("run result published")
}
