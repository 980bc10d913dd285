// Package main はCLIツールのエントリポイント。
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

var (
	apiURL  string
	output  string
	timeout time.Duration
)

// HTTPクライアント
var httpClient *http.Client

func main() {
	rootCmd := &cobra.Command{
		Use:   "optctl",
		Short: "Optropic Code Service CLI",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if apiURL == "" {
				apiURL = os.Getenv("OPTCTL_API_URL")
			}
			httpClient = &http.Client{Timeout: timeout}
		},
	}

	// グローバルフラグ
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API endpoint URL (or set OPTCTL_API_URL)")
	rootCmd.PersistentFlags().StringVar(&output, "output", "text", "Output format: text, json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	// サブコマンド登録
	rootCmd.AddCommand(keyCmd())
	rootCmd.AddCommand(codeCmd())
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(securityCmd())
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("optctl version %s\n", version)
		},
	}
}

func keyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage signing and encryption keys",
	}
	cmd.AddCommand(keyCreateCmd())
	cmd.AddCommand(keyRotateCmd())
	cmd.AddCommand(keyRevokeCmd())
	cmd.AddCommand(keyListCmd())
	return cmd
}

// keyCreateCmd は鍵の生成コマンド。
func keyCreateCmd() *cobra.Command {
	var projectID, name, keyType, expiresAt string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new key for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAPIURL(); err != nil {
				return err
			}

			reqBody := map[string]string{
				"keyName": name,
				"type":    keyType,
			}
			if expiresAt != "" {
				reqBody["expiresAt"] = expiresAt
			}

			url := fmt.Sprintf("%s/v1/projects/%s/keys", apiURL, projectID)
			body, err := postJSON(url, reqBody, http.StatusCreated)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result map[string]interface{}
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}
				fmt.Printf("Created key %q for project %q (id: %s)\n", name, projectID, result["id"])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "Project ID (required)")
	cmd.Flags().StringVar(&name, "name", "", "Key name (required)")
	cmd.Flags().StringVar(&keyType, "type", "SIGNING", "Key type: ENCRYPTION, SIGNING, NFC_PAIRING, RFID_PAIRING")
	cmd.Flags().StringVar(&expiresAt, "expires-at", "", "Expiry in RFC3339 (optional)")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("name")
	return cmd
}

// keyRotateCmd は鍵のローテーションコマンド。
func keyRotateCmd() *cobra.Command {
	var projectID, keyID string
	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Rotate a key, deactivating it and issuing a successor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAPIURL(); err != nil {
				return err
			}

			url := fmt.Sprintf("%s/v1/projects/%s/keys/%s/rotate", apiURL, projectID, keyID)
			body, err := postJSON(url, nil, http.StatusCreated)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result map[string]interface{}
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}
				fmt.Printf("Rotated key %s (successor: %s)\n", keyID, result["id"])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "Project ID (required)")
	cmd.Flags().StringVar(&keyID, "key", "", "Key ID (required)")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("key")
	return cmd
}

// keyRevokeCmd は鍵の失効コマンド。
func keyRevokeCmd() *cobra.Command {
	var projectID, keyID string
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a key permanently",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAPIURL(); err != nil {
				return err
			}

			url := fmt.Sprintf("%s/v1/projects/%s/keys/%s", apiURL, projectID, keyID)
			body, err := doDelete(url, http.StatusOK)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				fmt.Printf("Revoked key %s in project %q\n", keyID, projectID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "Project ID (required)")
	cmd.Flags().StringVar(&keyID, "key", "", "Key ID (required)")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("key")
	return cmd
}

// keyListCmd は鍵一覧の取得コマンド。
func keyListCmd() *cobra.Command {
	var projectID string
	var activeOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List keys for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAPIURL(); err != nil {
				return err
			}

			url := fmt.Sprintf("%s/v1/projects/%s/keys", apiURL, projectID)
			if activeOnly {
				url += "?active=true"
			}
			body, err := doGet(url)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result struct {
					Keys []struct {
						ID        string `json:"id"`
						Name      string `json:"name"`
						Type      string `json:"type"`
						IsActive  bool   `json:"isActive"`
						CreatedAt string `json:"createdAt"`
					} `json:"keys"`
				}
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}

				fmt.Printf("%-38s %-20s %-14s %-8s %s\n", "ID", "NAME", "TYPE", "ACTIVE", "CREATED_AT")
				for _, k := range result.Keys {
					fmt.Printf("%-38s %-20s %-14s %-8t %s\n", k.ID, k.Name, k.Type, k.IsActive, k.CreatedAt)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "Project ID (required)")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "List only active, non-expired keys")
	cmd.MarkFlagRequired("project")
	return cmd
}

func codeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "code",
		Short: "Manage issued codes",
	}
	cmd.AddCommand(codeIssueCmd())
	cmd.AddCommand(codeGetCmd())
	cmd.AddCommand(codeListCmd())
	cmd.AddCommand(codeRevokeCmd())
	cmd.AddCommand(codeStatsCmd())
	return cmd
}

// codeGetCmd はトークンからのコード解決コマンド。検証と違い副作用はない。
func codeGetCmd() *cobra.Command {
	var projectID, codeValue string
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Resolve a code from its encoded value",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAPIURL(); err != nil {
				return err
			}

			u := fmt.Sprintf("%s/v1/projects/%s/codes/lookup?value=%s", apiURL, projectID, url.QueryEscape(codeValue))
			body, err := doGet(u)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result struct {
					ID              string `json:"id"`
					CodeType        string `json:"codeType"`
					EncryptionLevel string `json:"encryptionLevel"`
					IsActive        bool   `json:"isActive"`
					CreatedAt       string `json:"createdAt"`
				}
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}
				fmt.Printf("Code %s (%s/%s, active: %t, created: %s)\n",
					result.ID, result.CodeType, result.EncryptionLevel, result.IsActive, result.CreatedAt)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "Project ID (required)")
	cmd.Flags().StringVar(&codeValue, "value", "", "Encoded code value (required)")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("value")
	return cmd
}

// codeIssueCmd はコードの発行コマンド。
func codeIssueCmd() *cobra.Command {
	var projectID, keyID, codeType, encLevel, assetID, contentID, role string
	var encrypted bool
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a signed code",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAPIURL(); err != nil {
				return err
			}

			reqBody := map[string]interface{}{
				"keyId":           keyID,
				"codeType":        codeType,
				"encryptionLevel": encLevel,
				"encryptPayload":  encrypted,
			}
			if assetID != "" {
				reqBody["assetId"] = assetID
			}
			if contentID != "" {
				reqBody["contentId"] = contentID
			}
			if role != "" {
				reqBody["role"] = role
			}

			url := fmt.Sprintf("%s/v1/projects/%s/codes", apiURL, projectID)
			body, err := postJSON(url, reqBody, http.StatusCreated)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result map[string]interface{}
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}
				fmt.Printf("Issued code %s\n", result["id"])
				fmt.Println(result["codeValue"])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "Project ID (required)")
	cmd.Flags().StringVar(&keyID, "key", "", "Signing key ID (required)")
	cmd.Flags().StringVar(&codeType, "type", "OPTROPIC", "Code type: OPTROPIC, QRSSL, GS1_COMPLIANT")
	cmd.Flags().StringVar(&encLevel, "level", "AES_256", "Encryption level: AES_128, AES_256, RSA_2048, RSA_4096")
	cmd.Flags().StringVar(&assetID, "asset", "", "Asset ID to bind the code to (optional)")
	cmd.Flags().StringVar(&contentID, "content", "", "Content ID embedded in the payload (optional)")
	cmd.Flags().StringVar(&role, "role", "", "Role embedded in the payload (optional)")
	cmd.Flags().BoolVar(&encrypted, "encrypt", false, "Embed an encrypted payload in the code value")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("key")
	return cmd
}

// codeListCmd はコード一覧の取得コマンド。
func codeListCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List codes for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAPIURL(); err != nil {
				return err
			}

			url := fmt.Sprintf("%s/v1/projects/%s/codes", apiURL, projectID)
			body, err := doGet(url)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result struct {
					Codes []struct {
						ID              string `json:"id"`
						CodeType        string `json:"codeType"`
						EncryptionLevel string `json:"encryptionLevel"`
						IsActive        bool   `json:"isActive"`
						CreatedAt       string `json:"createdAt"`
					} `json:"codes"`
				}
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}

				fmt.Printf("%-38s %-14s %-10s %-8s %s\n", "ID", "TYPE", "LEVEL", "ACTIVE", "CREATED_AT")
				for _, c := range result.Codes {
					fmt.Printf("%-38s %-14s %-10s %-8t %s\n", c.ID, c.CodeType, c.EncryptionLevel, c.IsActive, c.CreatedAt)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "Project ID (required)")
	cmd.MarkFlagRequired("project")
	return cmd
}

// codeRevokeCmd はコードの失効コマンド。
func codeRevokeCmd() *cobra.Command {
	var projectID, codeID string
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a code",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAPIURL(); err != nil {
				return err
			}

			url := fmt.Sprintf("%s/v1/projects/%s/codes/%s", apiURL, projectID, codeID)
			body, err := doDelete(url, http.StatusOK)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				fmt.Printf("Revoked code %s in project %q\n", codeID, projectID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "Project ID (required)")
	cmd.Flags().StringVar(&codeID, "code", "", "Code ID (required)")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("code")
	return cmd
}

// codeStatsCmd はコード統計の取得コマンド。
func codeStatsCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show code statistics for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAPIURL(); err != nil {
				return err
			}

			url := fmt.Sprintf("%s/v1/projects/%s/codes/stats", apiURL, projectID)
			body, err := doGet(url)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result struct {
					Total    int64   `json:"totalCodes"`
					Active   int64   `json:"activeCodes"`
					Inactive int64   `json:"inactiveCodes"`
					Scans    int64   `json:"totalScans"`
					AvgTrust float64 `json:"averageTrustScore"`
				}
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}
				fmt.Printf("Total: %d  Active: %d  Inactive: %d  Scans: %d  AvgTrust: %.1f\n",
					result.Total, result.Active, result.Inactive, result.Scans, result.AvgTrust)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "Project ID (required)")
	cmd.MarkFlagRequired("project")
	return cmd
}

// verifyCmd はコードの検証コマンド。
func verifyCmd() *cobra.Command {
	var codeValue, ip, userAgent, deviceType string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a scanned code value",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAPIURL(); err != nil {
				return err
			}

			reqBody := map[string]string{"codeValue": codeValue}
			if ip != "" {
				reqBody["ipAddress"] = ip
			}
			if userAgent != "" {
				reqBody["userAgent"] = userAgent
			}
			if deviceType != "" {
				reqBody["deviceType"] = deviceType
			}

			url := fmt.Sprintf("%s/v1/verify", apiURL)
			body, err := postJSON(url, reqBody, http.StatusOK)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result struct {
					Success      bool   `json:"success"`
					TrustScore   int    `json:"trustScore"`
					Message      string `json:"message"`
					IsSuspicious bool   `json:"isSuspicious"`
				}
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}
				fmt.Printf("%s (trust: %d, suspicious: %t)\n", result.Message, result.TrustScore, result.IsSuspicious)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&codeValue, "code", "", "Code value to verify (required)")
	cmd.Flags().StringVar(&ip, "ip", "", "Scanner IP address (optional)")
	cmd.Flags().StringVar(&userAgent, "user-agent", "", "Scanner user agent (optional)")
	cmd.Flags().StringVar(&deviceType, "device-type", "", "Scanner device type (optional)")
	cmd.MarkFlagRequired("code")
	return cmd
}

func securityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "security",
		Short: "Inspect scan anomalies and suspicious sources",
	}
	cmd.AddCommand(securitySuspiciousCmd())
	cmd.AddCommand(securityAnomaliesCmd())
	return cmd
}

// securitySuspiciousCmd は不審送信元の取得コマンド。
func securitySuspiciousCmd() *cobra.Command {
	var projectID string
	var windowHours int
	cmd := &cobra.Command{
		Use:   "suspicious",
		Short: "List suspicious scan sources for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAPIURL(); err != nil {
				return err
			}

			url := fmt.Sprintf("%s/v1/projects/%s/security/suspicious", apiURL, projectID)
			if windowHours > 0 {
				url = fmt.Sprintf("%s?window_hours=%d", url, windowHours)
			}
			body, err := doGet(url)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result struct {
					Sources []struct {
						IPAddress string `json:"ipAddress"`
						ScanCount int64  `json:"scanCount"`
					} `json:"sources"`
				}
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}

				fmt.Printf("%-40s %s\n", "IP_ADDRESS", "SCAN_COUNT")
				for _, s := range result.Sources {
					fmt.Printf("%-40s %d\n", s.IPAddress, s.ScanCount)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "Project ID (required)")
	cmd.Flags().IntVar(&windowHours, "window-hours", 0, "Lookback window in hours (default 24)")
	cmd.MarkFlagRequired("project")
	return cmd
}

// securityAnomaliesCmd はスキャンレート異常の取得コマンド。
func securityAnomaliesCmd() *cobra.Command {
	var projectID string
	var threshold float64
	cmd := &cobra.Command{
		Use:   "anomalies",
		Short: "Check scan rate anomalies for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAPIURL(); err != nil {
				return err
			}

			url := fmt.Sprintf("%s/v1/projects/%s/security/anomalies", apiURL, projectID)
			if threshold > 0 {
				url = fmt.Sprintf("%s?threshold=%g", url, threshold)
			}
			body, err := doGet(url)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result struct {
					CurrentRate int64   `json:"currentRate"`
					AverageRate float64 `json:"averageRate"`
					Deviation   float64 `json:"deviation"`
					HasAnomaly  bool    `json:"hasAnomaly"`
				}
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}
				fmt.Printf("Current: %d  Average: %.2f  Deviation: %.2f  Anomaly: %t\n",
					result.CurrentRate, result.AverageRate, result.Deviation, result.HasAnomaly)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "Project ID (required)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Deviation threshold (default 2.0)")
	cmd.MarkFlagRequired("project")
	return cmd
}

func requireAPIURL() error {
	if apiURL == "" {
		return fmt.Errorf("--api-url is required (or set OPTCTL_API_URL)")
	}
	return nil
}

func postJSON(url string, reqBody interface{}, wantStatus int) ([]byte, error) {
	var reader io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	resp, err := httpClient.Post(url, "application/json", reader)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != wantStatus {
		return nil, handleErrorResponse(resp.StatusCode, body)
	}
	return body, nil
}

func doGet(url string) ([]byte, error) {
	resp, err := httpClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(resp.StatusCode, body)
	}
	return body, nil
}

func doDelete(url string, wantStatus int) ([]byte, error) {
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != wantStatus {
		return nil, handleErrorResponse(resp.StatusCode, body)
	}
	return body, nil
}

func handleErrorResponse(statusCode int, body []byte) error {
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&errResp); err == nil && errResp.Message != "" {
		return fmt.Errorf("Error: %s", errResp.Message)
	}
	return fmt.Errorf("Error: server returned status %d", statusCode)
}
