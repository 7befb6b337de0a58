package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jluzny/hag-ex"
	"github.com/jluzny/hag-ex/internal/config"
	"github.com/jluzny/hag-ex/internal/hub"
	"github.com/jluzny/hag-ex/internal/logger"

	"github.com/spf13/cobra"
)

var apiAddr string

var statusCmd = cobra.Command{
	Use:   "status",
	Short: "print the running controller's status",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&apiAddr, "api-addr", "", "address of a running instance's control API")
	evaluateCmd.Flags().StringVar(&apiAddr, "api-addr", "", "address of a running instance's control API")
}

func resolveApiAddr() (string, error) {
	if apiAddr != "" {
		return apiAddr, nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", err
	}
	return cfg.Api.Addr, nil
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 5 * time.Second}
}

func runStatus(_ *cobra.Command, _ []string) error {
	addr, err := resolveApiAddr()
	if err == nil {
		if st, apiErr := fetchStatus(addr); apiErr == nil {
			printStatus(*st)
			return nil
		}
	}

	// No running instance's control API is reachable; fall back to a
	// one-shot direct connection to the hub so `status` still reports
	// something useful without a long-lived controller process.
	return oneShotStatus()
}

func fetchStatus(addr string) (*hagex.Status, error) {
	resp, err := httpClient().Get("http://" + addr + "/status")
	if err != nil {
		return nil, fmt.Errorf("no running instance reachable at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status query failed: HTTP %d", resp.StatusCode)
	}
	var st hagex.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("decoding status: %w", err)
	}
	return &st, nil
}

func oneShotStatus() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.Get(logger.ErrorLevel)

	client := hub.New(cfg.Hub, log, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sessionDone := make(chan error, 1)
	sessionCtx, cancelSession := context.WithCancel(ctx)
	defer cancelSession()
	go func() { sessionDone <- client.Run(sessionCtx) }()

	connected := false
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if client.IsConnected() {
			connected = true
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	cancelSession()

	printStatus(hagex.Status{
		State:          hagex.StateInitial,
		Connected:      connected,
		EntityCount:    len(cfg.EnabledEntities()),
		ConfiguredTemp: cfg.Hvac.TempSensor,
	})
	return nil
}

func printStatus(st hagex.Status) {
	fmt.Printf("state: %s\n", st.State)
	fmt.Printf("connected: %t\n", st.Connected)
	fmt.Printf("entity_count: %d\n", st.EntityCount)
	fmt.Printf("temp_sensor: %s\n", st.ConfiguredTemp)
}
