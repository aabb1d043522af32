// Command meridianctl triggers background jobs by hand, for operators.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/hibiken/asynq"

	"github.com/meridian-ai/meridian/jobs"
)

func main() {
	redisAddr := flag.String("redis", getenv("REDIS_ADDR", "127.0.0.1:6379"), "redis address")
	resourceType := flag.String("resource-type", "", "restrict the integrity scan to one resource type")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: meridianctl [flags] <%s|%s>\n", jobs.TaskACLIntegrityScan, jobs.TaskSeedAccessRoles)
		os.Exit(2)
	}

	client := jobs.NewClient(asynq.RedisClientOpt{Addr: *redisAddr})
	defer func() { _ = client.Close() }()

	ctx := context.Background()
	var info *asynq.TaskInfo
	var err error
	switch task := flag.Arg(0); task {
	case jobs.TaskACLIntegrityScan:
		info, err = client.EnqueueIntegrityScan(ctx, jobs.IntegrityScanPayload{ResourceType: *resourceType})
	case jobs.TaskSeedAccessRoles:
		info, err = client.EnqueueSeedAccessRoles(ctx)
	default:
		log.Fatalf("unsupported job %s", task)
	}
	if err != nil {
		log.Fatalf("enqueue: %v", err)
	}
	fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
