package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/Zereker/multivu"
	"github.com/Zereker/multivu/instrument"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	server := multivu.NewServer("127.0.0.1:0",
		multivu.LoggerOption(logger),
		multivu.FlavorOption(instrument.DynaCool.String()),
		multivu.ScaffoldingOption(true),
		multivu.DispatcherOption(instrument.NewSimulated(instrument.DynaCool,
			instrument.ChamberSettleOption(time.Second))),
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := server.Open(ctx); err != nil {
		slog.Error("failed to start server", "error", err)
		return
	}
	defer server.Close()

	client := multivu.NewClient(server.Addr().String(), multivu.LoggerOption(logger))
	if err := client.Open(ctx); err != nil {
		slog.Error("failed to connect", "error", err)
		return
	}
	slog.Info("connected", "flavor", client.Flavor(), "options", client.ServerOptions().String())

	if err := client.SetTemperature(ctx, 299, 30, instrument.TemperatureFastSettle); err != nil {
		slog.Error("set temperature", "error", err)
		return
	}
	if err := client.SetChamber(ctx, instrument.ChamberPurgeSeal); err != nil {
		slog.Error("set chamber", "error", err)
		return
	}

	if err := client.WaitFor(ctx, 0, 30*time.Second, instrument.SubsystemTemperature|instrument.SubsystemChamber); err != nil {
		slog.Error("wait for stable", "error", err)
		return
	}

	temp, err := client.GetTemperature(ctx)
	if err != nil {
		slog.Error("get temperature", "error", err)
		return
	}
	chamber, err := client.GetChamber(ctx)
	if err != nil {
		slog.Error("get chamber", "error", err)
		return
	}
	slog.Info("settled", "temperature", temp.Value, "units", temp.Units, "chamber", chamber.State)

	if _, err := client.QueryServer(ctx, "PRESSURE?", ""); err != nil {
		slog.Info("server rejected command", "error", err)
	}

	if err := client.CloseServer(); err != nil {
		slog.Error("close server", "error", err)
		return
	}
	<-server.Done()
	slog.Info("server stopped")
}
