package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jluzny/hag-ex/internal/config"

	"github.com/spf13/cobra"
)

var evaluateCmd = cobra.Command{
	Use:   "evaluate",
	Short: "force an immediate conditions refresh and FSM tick",
	RunE:  runEvaluate,
}

func runEvaluate(_ *cobra.Command, _ []string) error {
	addr, err := resolveApiAddr()
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	token, err := requestToken(addr, cfg.Api.ControlSecret)
	if err != nil {
		return fmt.Errorf("obtaining control token: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, "http://"+addr+"/trigger", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("calling trigger endpoint at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("trigger failed: HTTP %d", resp.StatusCode)
	}
	fmt.Println("evaluation triggered")
	return nil
}

func requestToken(addr, secret string) (string, error) {
	body, err := json.Marshal(map[string]string{"secret": secret})
	if err != nil {
		return "", err
	}
	resp, err := httpClient().Post("http://"+addr+"/control/token", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request failed: HTTP %d", resp.StatusCode)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Token, nil
}
