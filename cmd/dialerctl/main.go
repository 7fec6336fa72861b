// dialerctl is the operator CLI for the dialer worker fleet.
//
//	dialerctl stop-worker            publish a stop signal to every worker
//	dialerctl check-status           print the status endpoint's report
//	dialerctl seed-queue <campaign>  force-dispatch one campaign
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/dialer/internal/config"
	"github.com/ignite/dialer/internal/queue"
	"github.com/ignite/dialer/internal/repository/postgres"
	"github.com/ignite/dialer/internal/service/campaign"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", "config.yaml", "path to the YAML config file")
		statusURL  = flag.String("status-url", "", "status endpoint base URL (default from config)")
	)
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: dialerctl [flags] stop-worker|check-status|seed-queue <campaignId>")
		return 1
	}

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch flag.Arg(0) {
	case "stop-worker":
		return stopWorker(ctx, cfg)
	case "check-status":
		url := *statusURL
		if url == "" {
			url = "http://" + cfg.Server.Addr()
		}
		return checkStatus(ctx, url)
	case "seed-queue":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "usage: dialerctl seed-queue <campaignId>")
			return 1
		}
		return seedQueue(ctx, cfg, flag.Arg(1))
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", flag.Arg(0))
		return 1
	}
}

func newQueue(cfg *config.Config) (*queue.Queue, func(), error) {
	opts, err := redis.ParseURL(cfg.Queue.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	return queue.New(client), func() { client.Close() }, nil
}

func stopWorker(ctx context.Context, cfg *config.Config) int {
	q, closeQueue, err := newQueue(cfg)
	if err != nil {
		log.Printf("%v", err)
		return 1
	}
	defer closeQueue()

	if err := q.PublishStop(ctx); err != nil {
		log.Printf("Failed to publish stop signal: %v", err)
		return 1
	}
	fmt.Println("Stop signal published")
	return 0
}

func checkStatus(ctx context.Context, baseURL string) int {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/status", nil)
	if err != nil {
		log.Printf("Failed to build request: %v", err)
		return 1
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Printf("Status endpoint unreachable: %v", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("Status endpoint returned %d", resp.StatusCode)
		return 1
	}

	// Pretty-print the JSON report.
	var report map[string]interface{}
	body, err := io.ReadAll(resp.Body)
	if err != nil || json.Unmarshal(body, &report) != nil {
		log.Printf("Malformed status response")
		return 1
	}
	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(out))
	return 0
}

func seedQueue(ctx context.Context, cfg *config.Config, campaignID string) int {
	db, err := sql.Open("postgres", cfg.Store.DatabaseURL)
	if err != nil {
		log.Printf("Failed to open database: %v", err)
		return 1
	}
	defer db.Close()

	repo := postgres.NewCampaignRepo(db)
	c, err := repo.FindByID(ctx, campaignID)
	if err != nil {
		log.Printf("Campaign lookup failed: %v", err)
		return 1
	}
	if c.Status.IsTerminal() {
		log.Printf("Campaign %s is %s; nothing to dispatch", c.ID, c.Status)
		return 1
	}

	svc := campaign.NewService(repo, postgres.NewContactRepo(db))
	claimed, err := svc.Claim(ctx, c.ID, time.Now().Add(10*time.Minute))
	if err != nil {
		log.Printf("Failed to claim campaign: %v", err)
		return 1
	}

	q, closeQueue, err := newQueue(cfg)
	if err != nil {
		log.Printf("%v", err)
		return 1
	}
	defer closeQueue()

	scheduled := time.Now()
	if c.NextCallDate != nil {
		scheduled = *c.NextCallDate
	}
	if err := q.Push(ctx, queue.DispatchPayload{
		CampaignID:   claimed.ID,
		ContactID:    claimed.ContactID,
		ScheduledFor: scheduled,
	}); err != nil {
		log.Printf("Failed to enqueue campaign: %v", err)
		return 1
	}
	fmt.Printf("Campaign %s enqueued for dispatch\n", claimed.ID)
	return 0
}
