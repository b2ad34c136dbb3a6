package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ajirinow/backend/internal/mpesa"
	"github.com/ajirinow/backend/pkg/logger"
)

var (
	simURL        string
	simMerchant   string
	simCheckout   string
	simResultCode int
	simAmount     int64
	simPhone      string
	simReceipt    string
)

var simulateCallbackCmd = &cobra.Command{
	Use:   "simulate-callback",
	Short: "Post a sandbox shaped STK callback to a running server",
	Long:  `Post an STK callback for the given correlation ids, the way the M-Pesa sandbox would, to exercise settlement locally.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		return postCallback(ctx, http.DefaultClient, simURL, buildSimulatedCallback(time.Now()))
	},
}

func buildSimulatedCallback(now time.Time) mpesa.CallbackEnvelope {
	receipt := simReceipt
	if receipt == "" {
		receipt = "SIM" + uuid.NewString()[:7]
	}
	return mpesa.SandboxCallback(simMerchant, simCheckout, simResultCode, simAmount, receipt, simPhone, mpesa.Timestamp(now))
}

func postCallback(ctx context.Context, client *http.Client, url string, env mpesa.CallbackEnvelope) error {
	lg := logger.LoggerWrapper()

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode callback: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post callback: %w", err)
	}
	defer resp.Body.Close()

	reply, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	lg.Info("callback delivered",
		"url", url,
		"merchant_request_id", env.Body.STKCallback.MerchantRequestID,
		"checkout_request_id", env.Body.STKCallback.CheckoutRequestID,
		"result_code", env.Body.STKCallback.ResultCode,
		"status", resp.StatusCode,
		"reply", string(reply))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server answered %d: %s", resp.StatusCode, reply)
	}
	return nil
}

func init() {
	simulateCallbackCmd.Flags().StringVar(&simURL, "url", "http://localhost:8080/callback", "callback endpoint")
	simulateCallbackCmd.Flags().StringVar(&simMerchant, "merchant", "", "MerchantRequestID of the pending entry")
	simulateCallbackCmd.Flags().StringVar(&simCheckout, "checkout", "", "CheckoutRequestID of the pending entry")
	simulateCallbackCmd.Flags().IntVar(&simResultCode, "result-code", 0, "0 for success, anything else fails the entry")
	simulateCallbackCmd.Flags().Int64Var(&simAmount, "amount", 200, "amount reported in the metadata")
	simulateCallbackCmd.Flags().StringVar(&simPhone, "phone", "254708374149", "payer phone reported in the metadata")
	simulateCallbackCmd.Flags().StringVar(&simReceipt, "receipt", "", "receipt number, random when empty")
	_ = simulateCallbackCmd.MarkFlagRequired("merchant")
	_ = simulateCallbackCmd.MarkFlagRequired("checkout")
}
