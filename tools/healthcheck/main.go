// Command healthcheck probes a carousing node's /health endpoint and exits non-zero unless it
// answers ok. It is meant for container HEALTHCHECK lines.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/bloops-games/carousing/internal/httputil"
	"github.com/bloops-games/carousing/internal/logging"
	"github.com/bloops-games/carousing/internal/shutdown"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	URL      string        `envconfig:"CAROUSING_HC_URL" default:"http://localhost:8080/health"`
	Username string        `envconfig:"CAROUSING_HC_USERNAME"`
	Password string        `envconfig:"CAROUSING_HC_PASSWORD"`
	Timeout  time.Duration `envconfig:"CAROUSING_HC_TIMEOUT" default:"5s"`
}

type okResponse struct {
	Status string `json:"status"`
}

func main() {
	flag.Parse()
	ctx, cancel := shutdown.New()
	logger := logging.FromContext(ctx)
	defer cancel()
	config := Config{}
	if err := envconfig.Process("", &config); err != nil {
		logger.Fatalf("processing the config: %v", err)
	}

	var rt http.RoundTripper = &http.Transport{
		DisableCompression:    true,
		TLSHandshakeTimeout:   config.Timeout,
		ResponseHeaderTimeout: config.Timeout,
	}
	if config.Username != "" {
		rt = httputil.NewBasicAuthRoundTripper(config.Username, config.Password, rt)
	}

	client := httputil.NewClient(rt)
	client.Timeout = config.Timeout

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, config.URL, nil)
	if err != nil {
		logger.Fatalf("new request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		logger.Fatalf("client do: %v", err)
	}
	defer resp.Body.Close()

	bytes, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Fatalf("read all body bytes: %v", err)
	}

	var ok okResponse
	if err := json.Unmarshal(bytes, &ok); err != nil {
		logger.Fatalf("body unmarshal: %v", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "%d %s\n", resp.StatusCode, ok.Status)
	if resp.StatusCode != http.StatusOK || ok.Status != "ok" {
		os.Exit(1)
	}
}
