package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/Nitesh802/customerintel-sub008/internal/domain"
)

var watchFlags struct {
	addr    string
	afterTs int64
	follow  bool
}

var watchCmd = &cobra.Command{
	Use:   "watch <run-id>",
	Short: "Stream a run's events from a running server",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	f := watchCmd.Flags()
	f.StringVar(&watchFlags.addr, "addr", "ws://localhost:8080", "Server base address")
	f.Int64Var(&watchFlags.afterTs, "after-ts", 0, "Only replay events after this unix-ms timestamp")
	f.BoolVar(&watchFlags.follow, "follow", false, "Keep streaming after the run ends")
}

// runEnded reports whether ev closes the run's event stream.
func runEnded(ev domain.Event) bool {
	switch ev.Type {
	case domain.EventTypeRunCompleted, domain.EventTypeRunFailed, domain.EventTypeRunCancelled, domain.EventTypeRunBlocked:
		return true
	}
	return false
}

func streamURL(base, runID string, afterTs int64) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("parse addr: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path += "/v1/runs/" + url.PathEscape(runID) + "/stream"
	if afterTs > 0 {
		u.RawQuery = "after_ts=" + strconv.FormatInt(afterTs, 10)
	}
	return u.String(), nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr, err := streamURL(watchFlags.addr, args[0], watchFlags.afterTs)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	}()

	out := cmd.OutOrStdout()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var ev domain.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "unmarshal error: %v\n", err)
			continue
		}
		ts := time.UnixMilli(ev.Ts).Format("15:04:05.000")
		fmt.Fprintf(out, "%s %-20s %s\n", ts, ev.Type, string(ev.Payload))

		if runEnded(ev) && !watchFlags.follow {
			return nil
		}
	}
}
