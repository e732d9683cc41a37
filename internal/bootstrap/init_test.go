package bootstrap

import (
	"context"
	"testing"

	"github.com/jmougeot/alarm-server/internal/config"
)

func TestRunFirstInitRequiresOwnerCredentials(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}

	err := RunFirstInit(context.Background(), nil, cfg)
	if err == nil {
		t.Fatal("RunFirstInit() with no owner credentials should error before touching the database")
	}
}

func TestRunFirstInitRejectsInvalidUsername(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		InitOwnerUsername: "a",
		InitOwnerPassword: "correct-horse-battery",
	}

	err := RunFirstInit(context.Background(), nil, cfg)
	if err == nil {
		t.Fatal("RunFirstInit() with a too-short username should error before touching the database")
	}
}
