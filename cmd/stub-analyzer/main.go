// Command stub-analyzer is a local stand-in for the downstream analysis
// service. It speaks the same wire format and flags a few risky patterns.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/HanTheDev/scan-gateway/internal/logging"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type rule struct {
	pattern  string
	decision string
	risk     string
	reason   string
}

var rules = []rule{
	{"selfdestruct", "BLOCK", "Critical", "contract can be destroyed"},
	{"delegatecall", "BLOCK", "High", "delegatecall to untrusted code"},
	{"tx.origin", "WARN", "Medium", "tx.origin used for authorization"},
	{".call{value", "REVIEW", "Medium", "low-level value transfer"},
}

type analyzeRequest struct {
	Code string `json:"code"`
	Mode string `json:"mode"`
}

type finding struct {
	Pattern string `json:"pattern"`
	Risk    string `json:"risk"`
	Reason  string `json:"reason"`
}

func analyze(code string) map[string]any {
	lower := strings.ToLower(code)
	findings := []finding{}
	decision, risk, reason := "ALLOW", "Low", "no risky patterns found"
	for _, r := range rules {
		if !strings.Contains(lower, r.pattern) {
			continue
		}
		findings = append(findings, finding{Pattern: r.pattern, Risk: r.risk, Reason: r.reason})
		if len(findings) == 1 {
			decision, risk, reason = r.decision, r.risk, r.reason
		}
	}
	return map[string]any{
		"decision":    decision,
		"overallRisk": risk,
		"reason":      reason,
		"summary":     fmt.Sprintf("%d finding(s)", len(findings)),
		"findings":    findings,
	}
}

func main() {
	godotenv.Load()
	logger := logging.Init(os.Getenv("LOG_ENV"), os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	defer logging.Sync()

	secret := os.Getenv("ANALYSIS_SHARED_SECRET")
	header := os.Getenv("ANALYSIS_SECRET_HEADER")
	if header == "" {
		header = "x-shared-secret"
	}
	port := os.Getenv("STUB_PORT")
	if port == "" {
		port = "9000"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /analyze", func(w http.ResponseWriter, r *http.Request) {
		if secret != "" && r.Header.Get(header) != secret {
			logger.Warn("Rejected request with wrong shared secret")
			http.Error(w, `{"error":"payment required"}`, http.StatusPaymentRequired)
			return
		}

		var req analyzeRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
			return
		}

		resp := analyze(req.Code)
		logger.Info("Analyzed submission",
			zap.Int("size", len(req.Code)),
			zap.String("mode", req.Mode),
			zap.Any("decision", resp["decision"]))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"result": resp})
	})

	logger.Info("Stub analyzer starting", zap.String("port", port))
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		logger.Fatal("Stub analyzer failed", zap.Error(err))
	}
}
