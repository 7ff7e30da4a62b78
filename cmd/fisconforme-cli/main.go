package main

import (
	"context"
	"fisconforme-backend/cmd/fisconforme-cli/commands"
	"fisconforme-backend/internal/components/telemetry"
)

func main() {
	telemetry.InitSlog(false)
	commands.ExecuteContext(context.Background())
}
