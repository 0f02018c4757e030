package main

import (
	"context"
	"log/slog"
	"time"

	"musicsync/internal/config"
	"musicsync/internal/deps"
	"musicsync/internal/fingerprint"
	"musicsync/internal/library"
	"musicsync/internal/plan"
	"musicsync/internal/session"
	"musicsync/internal/target"
	"musicsync/internal/transcode"
)

type syncFlags struct {
	yes        bool
	dryRun     bool
	waitDevice bool
	source     string
}

// composeSession wires a controller for one run. The returned cleanup stops
// the target actor and must be called once the run finishes.
func composeSession(ctx context.Context, cfg *config.Config, flags syncFlags, ui *terminalUI, logger *slog.Logger) (*session.Controller, func(), error) {
	sourceDir := cfg.Paths.SourceDir

	store, err := openTarget(ctx, cfg, flags.waitDevice, logger)
	if err != nil {
		return nil, func() {}, err
	}
	serial := target.NewSerial(store)
	ui.targetName = serial.Describe()

	probe := deps.ResolveFFprobe(cfg.Transcode.FFprobeBinary, cfg.Transcode.EncoderPath)
	fingerprints := fingerprint.New(sourceDir)
	decider := transcode.NewBitrateDecider(sourceDir, probe.Command, cfg.MinBitrate(), logger,
		transcode.WithPathResolver(fingerprints.Path))

	controller := session.New(session.Dependencies{
		Lister:       library.NewLister(cfg.Library.Extensions, cfg.Library.Exclude, cfg.Library.IgnoreFile, logger),
		Fingerprints: fingerprints,
		Decider:      decider,
		Transcoder:   transcode.NewEncoder(cfg.Transcode.EncoderPath, cfg.Transcode.EncoderArgs, logger),
		Store:        serial,
		Mapper:       plan.NewPathMapper(cfg.Target.MusicDir, cfg.Transcode.OutputExtension),
		Confirm:      ui.confirm,
		Preview:      ui.preview,
	}, session.Options{
		SourceDir:       sourceDir,
		WorkDir:         cfg.Paths.WorkDir,
		TempDir:         cfg.Paths.TempDir,
		CatalogName:     cfg.Target.CatalogName,
		OutputExtension: cfg.Transcode.OutputExtension,
		Workers:         cfg.Workers(),
		IsolateFailures: cfg.Execution.IsolateFailures,
		DryRun:          flags.dryRun,
	}, logger)

	return controller, func() { _ = serial.Close() }, nil
}

func openTarget(ctx context.Context, cfg *config.Config, waitDevice bool, logger *slog.Logger) (target.Store, error) {
	if cfg.Target.Kind == config.TargetKindS3 {
		backend, err := target.NewS3(ctx, cfg.Target.S3, logger)
		if err != nil {
			return nil, err
		}
		return backend, nil
	}

	discover := func(ctx context.Context) (string, error) {
		return target.Discover(ctx, cfg.Target.MountPoint, logger)
	}
	var (
		mount string
		err   error
	)
	if waitDevice {
		timeout := time.Duration(cfg.Target.WaitTimeoutSeconds) * time.Second
		mount, err = target.WaitForDevice(ctx, timeout, discover, logger)
	} else {
		mount, err = discover(ctx)
	}
	if err != nil {
		return nil, err
	}
	device, err := target.OpenDevice(mount, logger)
	if err != nil {
		return nil, err
	}
	return device, nil
}
