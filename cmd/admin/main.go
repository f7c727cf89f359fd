package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"brokerlink/internal/shared/logging"
)

const usage = `Brokerlink Admin CLI - Management commands for the Brokerlink API

Usage:
  admin <command> [options]

Commands:
  refresh      Refresh provider data for some users or for everyone
  migrate      Apply pending database migrations
  classify     Show how a provider error would be classified
  token        Issue an admin bearer token for the API
  credential   Store provider credentials for a user
  device       Register a push notification device token for a user

Examples:
  # Refresh one user synchronously
  admin refresh --user-id=1

  # Refresh several users
  admin refresh --user-id=1,2,3

  # Run a full refresh with four workers
  admin refresh --all --workers=4 --timeout=1h

  # Classify a provider response
  admin classify --status=401 --code=TOKEN_EXPIRED --message="token expired"

  # Issue a token valid for one day
  admin token --subject=ops@example.com --ttl=24h
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage + "\n")
		os.Exit(1)
	}

	logger := logging.New(os.Stderr, envOr("LOG_LEVEL", "info"), envOr("LOG_FORMAT", "text"))
	slog.SetDefault(logger)

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "refresh":
		err = runRefresh(args, logger)
	case "migrate":
		err = runMigrate(args, logger)
	case "classify":
		err = runClassify(args)
	case "token":
		err = runToken(args)
	case "credential":
		err = runCredential(args, logger)
	case "device":
		err = runDevice(args, logger)
	case "help", "-h", "--help":
		fmt.Print(usage + "\n")
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Print(usage + "\n")
		os.Exit(1)
	}

	if err != nil {
		logger.Error("command failed", "command", command, "error", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// parseUserIDs parses a comma-separated list of positive ids.
func parseUserIDs(s string) ([]int64, error) {
	var ids []int64
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid user ID '%s'", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
