package main

import (
	"context"

	"nikkeireport-backend/cmd/nikkeireport-cli/commands"
	"nikkeireport-backend/lib/serviceutil"
	"nikkeireport-backend/lib/telemetry"
)

func main() {
	ctx := serviceutil.SignalContext()
	tel, err := telemetry.SetupFromEnv(ctx, "nikkeireport-cli")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	defer tel.Shutdown(context.Background())
	telemetry.InstrumentPerfStats(ctx)

	commands.ExecuteContext(ctx)
}
